// Package mqtt provides the broker connections behind the discovery
// layer. Both implementations satisfy [discovery.Publisher] through
// the [Conn] interface:
//
//   - [Client] uses Eclipse Paho v2's [autopaho] package (MQTT 5) with
//     automatic reconnection.
//   - [LegacyClient] uses the Paho MQTT 3.1.1 client for brokers that
//     do not speak MQTT 5.
//
// On every (re-)connect each client publishes a retained birth message
// ("online") to the availability topic, and registers a retained will
// ("offline") so the topic flips when the connection drops without a
// clean shutdown. Discovery configs reference the availability topic
// so HA greys entities out while hamqtt is away.
package mqtt
