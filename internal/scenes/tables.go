package scenes

// FanFlapSection is the section holding fan and flap scene registers.
const FanFlapSection = "Fan_Flap"

// sceneRegisterStart is the first configuration register (0x10).
const sceneRegisterStart = 16

// Scene tables: scene id -> register.
var (
	// FanSceneRegisters maps fan scenes 0-9 to registers 16-25.
	FanSceneRegisters = map[int]int{
		0: sceneRegisterStart,
		1: sceneRegisterStart + 1,
		2: sceneRegisterStart + 2,
		3: sceneRegisterStart + 3,
		4: sceneRegisterStart + 4,
		5: sceneRegisterStart + 5,
		6: sceneRegisterStart + 6,
		7: sceneRegisterStart + 7,
		8: sceneRegisterStart + 8,
		9: sceneRegisterStart + 9,
	}

	// FlapSceneRegisters maps flap scenes 20-29 to registers 26-35.
	FlapSceneRegisters = map[int]int{
		20: sceneRegisterStart + 10,
		21: sceneRegisterStart + 11,
		22: sceneRegisterStart + 12,
		23: sceneRegisterStart + 13,
		24: sceneRegisterStart + 14,
		25: sceneRegisterStart + 15,
		26: sceneRegisterStart + 16,
		27: sceneRegisterStart + 17,
		28: sceneRegisterStart + 18,
		29: sceneRegisterStart + 19,
	}
)

// Default levels in percent, keyed by scene id.
var (
	FanSceneDefaults = map[int]int{
		0: 0, 1: 11, 2: 22, 3: 33, 4: 44,
		5: 55, 6: 66, 7: 77, 8: 88, 9: 100,
	}

	FlapSceneDefaults = map[int]int{
		20: 0, 21: 11, 22: 22, 23: 33, 24: 44,
		25: 55, 26: 66, 27: 77, 28: 88, 29: 100,
	}
)

// LightSceneIntensity maps group scenes on the light device to an intensity
// in percent.
var LightSceneIntensity = map[int]int{
	0:  0,
	13: 0,
	14: 100,
}

// Channel identifies which half of the fan/flap device a register belongs to.
type Channel int

const (
	ChannelNone Channel = iota
	ChannelFan
	ChannelFlap
)

// RegisterChannel reports whether reg is a fan or flap scene register.
func RegisterChannel(reg int) Channel {
	for _, r := range FanSceneRegisters {
		if r == reg {
			return ChannelFan
		}
	}
	for _, r := range FlapSceneRegisters {
		if r == reg {
			return ChannelFlap
		}
	}
	return ChannelNone
}

// SceneRegister resolves a scene id to its channel and register.
func SceneRegister(scene int) (Channel, int, bool) {
	if reg, ok := FanSceneRegisters[scene]; ok {
		return ChannelFan, reg, true
	}
	if reg, ok := FlapSceneRegisters[scene]; ok {
		return ChannelFlap, reg, true
	}
	return ChannelNone, 0, false
}
