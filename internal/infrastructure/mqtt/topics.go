package mqtt

import "fmt"

// TopicPrefix is the root of every topic published by the bridge.
// Bridge topics are flat: dsbridge/{category}/{bridge}[/{key}].
const TopicPrefix = "dsbridge"

// Topics builds bridge topic names.
//
//	mqtt.Topics{}.BridgeState("dstiny", "session")
//	// "dsbridge/state/dstiny/session"
type Topics struct{}

// BridgeHealth returns the retained health topic of a bridge.
func (Topics) BridgeHealth(bridge string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridge)
}

// BridgeState returns the retained state topic for one key of a bridge.
func (Topics) BridgeState(bridge, key string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, bridge, key)
}

// AllBridgeHealth matches the health topics of every bridge.
func (Topics) AllBridgeHealth() string {
	return TopicPrefix + "/health/+"
}

// AllBridgeStates matches every state topic of one bridge.
func (Topics) AllBridgeStates(bridge string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, bridge)
}
