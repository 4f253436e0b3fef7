package mqtt

import (
	"fmt"
)

// maxPayloadSize limits message payloads (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message and waits for the broker to acknowledge it.
//
// A retained message is remembered even when the client is offline, so the
// latest status reaches the broker on the next (re)connect. An empty
// retained payload clears the topic and is forgotten.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "mediaserver/living-room/status")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if retained {
		c.remember(topic, payload, qos)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.send(topic, payload, qos, retained)
}

// PublishRetained publishes a retained message with the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func (c *Client) remember(topic string, payload []byte, qos byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(payload) == 0 {
		delete(c.retained, topic)
		return
	}
	if c.retained == nil {
		c.retained = make(map[string]retainedMessage)
	}
	c.retained[topic] = retainedMessage{payload: append([]byte(nil), payload...), qos: qos}
}

func (c *Client) send(topic string, payload []byte, qos byte, retained bool) error {
	token := c.session.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
