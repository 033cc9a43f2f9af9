// Package scenes persists the fan and flap scene levels configured from the
// device bus.
//
// Each entry maps a scene register (a pass-through register number on the
// bus) to a level in percent. Registers are grouped in sections; the fan/flap
// device uses the FanFlapSection. The register tables and their defaults are
// fixed at compile time.
//
// # Backends
//
//   - SQLiteStore: rows in the scene_config table of the bridge database
//   - INIStore: a flat INI file, one key per register
//   - MemoryStore: in-process map, used by tests
//
// All backends satisfy Store, so the bus worker never depends on the medium.
package scenes
