package scenes

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/dstiny-bridge/migrations"
)

// setupTestDB opens a temporary SQLite database with the embedded schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "scenes.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // test cleanup
	})

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	ini, err := OpenINIStore(filepath.Join(t.TempDir(), "scenes.conf"))
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(setupTestDB(t)),
		"ini":    ini,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), FanFlapSection, 16)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "NewSection", 20, 42); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := s.Get(ctx, "NewSection", 20)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != 42 {
				t.Errorf("Get() = %d, want 42", got)
			}

			if err := s.Set(ctx, "NewSection", 20, 7); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			if got, _ := s.Get(ctx, "NewSection", 20); got != 7 {
				t.Errorf("Get() after overwrite = %d, want 7", got)
			}
		})
	}
}

func TestStore_SetRejectsOutOfRange(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, level := range []int{-1, 101, 255} {
				err := s.Set(context.Background(), FanFlapSection, 16, level)
				if !errors.Is(err, ErrInvalidLevel) {
					t.Errorf("Set(%d) error = %v, want ErrInvalidLevel", level, err)
				}
			}
		})
	}
}

func TestEnsureDefaults(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := EnsureDefaults(ctx, s); err != nil {
				t.Fatalf("EnsureDefaults() error = %v", err)
			}

			if reg := FanSceneRegisters[9]; reg != 25 {
				t.Fatalf("fan scene 9 register = %d, want 25", reg)
			}
			if got, _ := s.Get(ctx, FanFlapSection, 25); got != 100 {
				t.Errorf("register 25 = %d, want 100", got)
			}
			if reg := FlapSceneRegisters[29]; reg != 35 {
				t.Fatalf("flap scene 29 register = %d, want 35", reg)
			}
			if got, _ := s.Get(ctx, FanFlapSection, 35); got != 100 {
				t.Errorf("register 35 = %d, want 100", got)
			}

			for scene, reg := range FanSceneRegisters {
				got, err := s.Get(ctx, FanFlapSection, reg)
				if err != nil || got != FanSceneDefaults[scene] {
					t.Errorf("fan register %d = %d (%v), want %d", reg, got, err, FanSceneDefaults[scene])
				}
			}
		})
	}
}

func TestEnsureDefaults_Idempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, FanFlapSection, 18, 5); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := EnsureDefaults(ctx, s); err != nil {
				t.Fatalf("EnsureDefaults() error = %v", err)
			}
			if err := EnsureDefaults(ctx, s); err != nil {
				t.Fatalf("EnsureDefaults() second call error = %v", err)
			}

			if got, _ := s.Get(ctx, FanFlapSection, 18); got != 5 {
				t.Errorf("register 18 = %d, want 5 (pre-existing value kept)", got)
			}
			if got, _ := s.Get(ctx, FanFlapSection, 26); got != 0 {
				t.Errorf("register 26 = %d, want 0", got)
			}
		})
	}
}

func TestINIStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scenes.conf")

	s, err := OpenINIStore(path)
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}
	if err := s.Set(ctx, FanFlapSection, 21, 66); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading scene file: %v", err)
	}
	if !strings.Contains(string(data), "[Fan_Flap]") {
		t.Errorf("scene file missing section header:\n%s", data)
	}

	reopened, err := OpenINIStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if got, _ := reopened.Get(ctx, FanFlapSection, 21); got != 66 {
		t.Errorf("Get() after reopen = %d, want 66", got)
	}
}

func TestINIStore_UnparsableValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.conf")
	if err := os.WriteFile(path, []byte("[Fan_Flap]\n16 = high\n"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := OpenINIStore(path)
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}
	if _, err := s.Get(context.Background(), FanFlapSection, 16); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestINIStore_PersistFailure(t *testing.T) {
	ctx := context.Background()
	s, err := OpenINIStore(filepath.Join(t.TempDir(), "missing-dir", "scenes.conf"))
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}
	err = s.Set(ctx, FanFlapSection, 16, 1)
	if !errors.Is(err, ErrPersist) {
		t.Errorf("Set() error = %v, want ErrPersist", err)
	}
	if _, err := s.Get(ctx, FanFlapSection, 16); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after failed Set error = %v, want ErrNotFound", err)
	}
}

func TestINIStore_PersistFailureKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenINIStore(filepath.Join(dir, "scenes.conf"))
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}
	if err := s.Set(ctx, FanFlapSection, 16, 40); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s.path = filepath.Join(dir, "missing-dir", "scenes.conf")
	if err := s.Set(ctx, FanFlapSection, 16, 90); !errors.Is(err, ErrPersist) {
		t.Fatalf("Set() error = %v, want ErrPersist", err)
	}
	if err := s.Set(ctx, FanFlapSection, 17, 90); !errors.Is(err, ErrPersist) {
		t.Fatalf("Set() error = %v, want ErrPersist", err)
	}

	if got, err := s.Get(ctx, FanFlapSection, 16); err != nil || got != 40 {
		t.Errorf("Get(16) = %d, %v; want 40", got, err)
	}
	if _, err := s.Get(ctx, FanFlapSection, 17); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(17) error = %v, want ErrNotFound", err)
	}
}

func TestINIStore_OutOfRangeValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.conf")
	if err := os.WriteFile(path, []byte("[Fan_Flap]\n16 = 300\n17 = -4\n"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := OpenINIStore(path)
	if err != nil {
		t.Fatalf("OpenINIStore() error = %v", err)
	}
	for _, reg := range []int{16, 17} {
		if _, err := s.Get(context.Background(), FanFlapSection, reg); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%d) error = %v, want ErrNotFound", reg, err)
		}
	}
}
