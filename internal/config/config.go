// Package config resolves runtime settings: .env loading, backend selection
// and opening the chosen document store.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/julianstephens/daystreak/internal/docstore"
	"github.com/julianstephens/daystreak/internal/docstore/firestore"
	"github.com/julianstephens/daystreak/internal/docstore/memory"
	"github.com/julianstephens/daystreak/internal/docstore/postgres"
	"github.com/julianstephens/daystreak/internal/docstore/sqlite"
	"github.com/julianstephens/daystreak/internal/keyring"
	"github.com/julianstephens/daystreak/internal/logger"
)

type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendSQLite    Backend = "sqlite"
	BackendPostgres  Backend = "postgres"
	BackendFirestore Backend = "firestore"

	memoryDSN       = "memory:"
	keyringDSN      = "keyring:"
	firestorePrefix = "firestore://"
)

// Target is a resolved store selection
type Target struct {
	Backend Backend
	// DSN is the sqlite file path, postgres connection string or firestore project id
	DSN string
	// FromKeyring marks connection strings read from the OS keyring
	FromKeyring bool
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Resolve maps a --store value to a backend. "keyring:" reads a connection
// string from the OS keyring; those are trusted to carry a password, while
// postgres strings given on the command line or in the environment must not.
func Resolve(dsn string, fromKeyring func() (string, error)) (Target, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return Target{}, errors.New("store location cannot be empty")
	case dsn == memoryDSN:
		return Target{Backend: BackendMemory}, nil
	case dsn == keyringDSN:
		if fromKeyring == nil {
			fromKeyring = keyring.GetConnectionString
		}
		stored, err := fromKeyring()
		if err != nil {
			return Target{}, fmt.Errorf("failed to read store location from keyring: %w", err)
		}
		if stored == keyringDSN {
			return Target{}, errors.New("keyring entry cannot point back to the keyring")
		}
		t, err := Resolve(stored, nil)
		if err != nil && !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return Target{}, err
		}
		if errors.Is(err, postgres.ErrEmbeddedCredentials) {
			t = Target{Backend: BackendPostgres, DSN: stored}
		}
		t.FromKeyring = true
		return t, nil
	case strings.HasPrefix(dsn, firestorePrefix):
		project := strings.Trim(strings.TrimPrefix(dsn, firestorePrefix), "/")
		if project == "" || strings.Contains(project, "/") {
			return Target{}, fmt.Errorf("invalid firestore location %q, expected firestore://<project>", dsn)
		}
		return Target{Backend: BackendFirestore, DSN: project}, nil
	case postgres.IsConnString(dsn):
		if err := postgres.ValidateConnString(dsn); err != nil {
			return Target{}, err
		}
		return Target{Backend: BackendPostgres, DSN: dsn}, nil
	default:
		path, err := ExpandHome(dsn)
		if err != nil {
			return Target{}, err
		}
		return Target{Backend: BackendSQLite, DSN: path}, nil
	}
}

// Open connects to the resolved store
func Open(ctx context.Context, t Target) (docstore.Store, error) {
	logger.Debug("Opening document store", "backend", t.Backend, "keyring", t.FromKeyring)
	switch t.Backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		return sqlite.Open(t.DSN)
	case BackendPostgres:
		return postgres.Open(t.DSN)
	case BackendFirestore:
		return firestore.Open(ctx, t.DSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", t.Backend)
	}
}
