// Package mqtt connects the bridge to an MQTT broker for health and
// session-state reporting.
//
// The broker is optional. When enabled the bridge publishes:
//
//	dsbridge/health/dstiny          retained HealthMessage, LWT on crash
//	dsbridge/state/dstiny/session   retained session state changes
//
// The client auto-reconnects with the paho backoff configured in the
// mqtt.reconnect section and runs an OnConnect callback after every
// (re)connection so retained state can be refreshed.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: topic, Payload: lwt})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.BridgeHealth("dstiny"), payload)
package mqtt
