package scenes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/go-ini/ini"
)

// INIStore implements Store on a flat INI file.
//
// Keys are decimal register numbers and values decimal levels:
//
//	[Fan_Flap]
//	16 = 0
//	17 = 11
//
// Every Set rewrites the whole file.
type INIStore struct {
	path string

	mu   sync.Mutex
	file *ini.File
}

// OpenINIStore loads path, or starts empty if the file does not exist yet.
func OpenINIStore(path string) (*INIStore, error) {
	var (
		f   *ini.File
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		f = ini.Empty()
	} else {
		f, err = ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading scene file %s: %w", path, err)
		}
	}
	return &INIStore{path: path, file: f}, nil
}

// Get implements Store. A value that does not parse as an integer or lies
// outside 0-100 is reported as ErrNotFound.
func (s *INIStore) Get(_ context.Context, section string, register int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.file.GetSection(section)
	if err != nil {
		return 0, ErrNotFound
	}
	key := strconv.Itoa(register)
	if !sec.HasKey(key) {
		return 0, ErrNotFound
	}
	level, err := sec.Key(key).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: register %d: %w", ErrNotFound, register, err)
	}
	if err := validateLevel(level); err != nil {
		return 0, fmt.Errorf("%w: register %d: %w", ErrNotFound, register, err)
	}
	return level, nil
}

// Set implements Store.
func (s *INIStore) Set(_ context.Context, section string, register, level int) error {
	if err := validateLevel(level); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.Itoa(register)
	_, secErr := s.file.GetSection(section)
	hadSection := secErr == nil
	sec := s.file.Section(section)
	hadKey := sec.HasKey(key)
	var previous string
	if hadKey {
		previous = sec.Key(key).String()
	}

	sec.Key(key).SetValue(strconv.Itoa(level))

	if err := s.file.SaveTo(s.path); err != nil {
		// Roll back so Get keeps reporting what is on disk.
		switch {
		case !hadSection:
			s.file.DeleteSection(section)
		case !hadKey:
			sec.DeleteKey(key)
		default:
			sec.Key(key).SetValue(previous)
		}
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *INIStore) Path() string {
	return s.path
}
