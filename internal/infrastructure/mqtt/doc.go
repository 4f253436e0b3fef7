// Package mqtt publishes the media server's status to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// Home automation systems subscribe to mediaserver/+/status to learn
// when a media server comes online, goes offline cleanly, or crashes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Status(cfg.MQTT.Broker.ClientID)
//	err = client.Publish(topic, []byte(`{"online":true}`), 1, true)
//
// # Security Considerations
//
//   - Use TLS outside a trusted LAN (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
package mqtt
