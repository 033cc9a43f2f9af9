package scenes

import (
	"context"
	"errors"
	"fmt"
)

// Level bounds in percent.
const (
	MinLevel = 0
	MaxLevel = 100
)

var (
	// ErrNotFound is returned by Get when the register has no stored level.
	ErrNotFound = errors.New("scenes: level not found")

	// ErrInvalidLevel is returned by Set for levels outside 0-100.
	ErrInvalidLevel = errors.New("scenes: level out of range")

	// ErrPersist is returned when the backing medium cannot be written.
	ErrPersist = errors.New("scenes: persist failed")
)

// Store is the key/value view of the scene configuration.
type Store interface {
	// Get returns the level stored for register in section, or ErrNotFound.
	Get(ctx context.Context, section string, register int) (int, error)

	// Set stores level for register, creating section if absent.
	Set(ctx context.Context, section string, register, level int) error
}

// EnsureDefaults writes the default level for every fan and flap register
// that has no stored value. Existing values are never changed.
func EnsureDefaults(ctx context.Context, s Store) error {
	if err := ensureTable(ctx, s, FanSceneRegisters, FanSceneDefaults); err != nil {
		return err
	}
	return ensureTable(ctx, s, FlapSceneRegisters, FlapSceneDefaults)
}

func ensureTable(ctx context.Context, s Store, regs, defaults map[int]int) error {
	for scene, reg := range regs {
		_, err := s.Get(ctx, FanFlapSection, reg)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("reading register %d: %w", reg, err)
		}
		if err := s.Set(ctx, FanFlapSection, reg, defaults[scene]); err != nil {
			return fmt.Errorf("writing default for register %d: %w", reg, err)
		}
	}
	return nil
}

func validateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return nil
}
