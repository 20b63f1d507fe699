// Package mqtt wraps the paho client for countcam's broker traffic.
//
// MQTT is the bus between the core and the instance manager that runs
// camera processing instances. Commands go out on the countcam/command
// hierarchy, acknowledgements come back on countcam/ack/+, and running
// instances stream readings on countcam/count/+.
//
// The wrapper adds what the raw paho client leaves to the caller:
// auto-reconnect with subscription replay, panic containment around
// message handlers, an LWT announcing the core offline on
// countcam/system/status, and payload validation before publish.
//
// TLS and broker credentials come from config.MQTTConfig. Anonymous
// plaintext connections are for local development only.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllAcks(), cfg.MQTT.QoS,
//		func(topic string, payload []byte) error {
//			return dispatcher.HandleAck(topic, payload)
//		})
package mqtt
