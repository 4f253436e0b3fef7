package mqtt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"

	"github.com/graymedia/mediaserver/internal/infrastructure/config"
)

// session is the part of pahomqtt.Client the wrapper uses after connect.
type session interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// retainedMessage is the last retained payload sent on a topic.
type retainedMessage struct {
	payload []byte
	qos     byte
}

// Client wraps paho.mqtt.golang for the media server's status publishing.
//
// The broker holds a Last Will on the status topic, so after an unclean
// drop the retained status reads offline even though the server is still
// up. To undo that, the client remembers every retained publish and
// replays the latest payload per topic on each reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	session   session
	cfg       config.MQTTConfig
	connected atomic.Bool

	mu           sync.Mutex
	retained     map[string]retainedMessage
	replayErr    error
	onConnect    func()
	onDisconnect func(err error)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures the Last Will on Topics{}.Status(client_id)
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{cfg: cfg}

	// paho runs this handler on its own goroutine, so replay may block.
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	paho := pahomqtt.NewClient(opts)
	c.session = paho

	token := paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connected.Store(true)
	return c, nil
}

// handleConnect restores retained state, then runs the connect callback.
func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.mu.Lock()
	topics := make([]string, 0, len(c.retained))
	for topic := range c.retained {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	msgs := make([]retainedMessage, len(topics))
	for i, topic := range topics {
		msgs[i] = c.retained[topic]
	}
	callback := c.onConnect
	c.mu.Unlock()

	var errs error
	for i, topic := range topics {
		multierr.AppendInto(&errs, c.send(topic, msgs[i].payload, msgs[i].qos, true))
	}

	c.mu.Lock()
	c.replayErr = errs
	c.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.Lock()
	callback := c.onDisconnect
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

// Close disconnects from the broker after letting pending publishes drain.
// A clean disconnect does not trigger the Last Will.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	c.session.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable,
// and ErrReplayFailed when retained state could not be restored after the
// last reconnect.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replayErr != nil {
		return fmt.Errorf("%w: %w", ErrReplayFailed, c.replayErr)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.session != nil && c.session.IsConnected()
}

// SetOnConnect sets a callback invoked on connect and every reconnect,
// after retained state has been replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}
