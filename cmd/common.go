package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coderelay/statevault/internal/config"
	"github.com/coderelay/statevault/internal/envelope"
	"github.com/coderelay/statevault/internal/key"
	"github.com/coderelay/statevault/internal/keyring"
	"github.com/coderelay/statevault/internal/lock"
	"github.com/coderelay/statevault/internal/manifest"
	"github.com/coderelay/statevault/internal/store"
)

// ConfigFileName is the optional YAML configuration file, looked up next to
// the default store root under ~/.coderelay.
const ConfigFileName = "statevault.yaml"

// LoadConfig reads the configuration file (if any), applies environment
// overrides and fills the master key from the OS keyring when neither the
// file nor the environment provided one.
func LoadConfig() config.Config {
	path := ConfigFileName
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, ".coderelay", ConfigFileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if len(cfg.MasterKey) == 0 {
		if id := storeID(cfg.Root); id != "" {
			if pass, err := keyring.GetPassphrase(id); err == nil && pass != "" {
				cfg.MasterKey = []byte(pass)
			}
		}
	}
	return cfg
}

// storeID reads the persistent store ID without opening the full store.
// Returns "" when the store has never been created.
func storeID(root string) string {
	path := filepath.Join(root, manifest.FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	db, err := manifest.Open(path)
	if err != nil {
		return ""
	}
	defer db.Close()

	id, err := db.StoreID()
	if err != nil {
		return ""
	}
	return id
}

// OpenStore opens the store with the resolved configuration, exiting on
// failure.
func OpenStore() *store.Store {
	return openWithConfig(LoadConfig())
}

func openWithConfig(cfg config.Config) *store.Store {
	s, err := store.Open(cfg)
	if err != nil {
		HandleError(err)
	}
	return s
}

// ParseKey parses a slash-separated key argument, exiting on failure.
func ParseKey(arg string) key.Key {
	k, err := key.Parse(arg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid key %q: %s\n", arg, err)
		os.Exit(1)
	}
	return k
}

// HandleError prints a user-facing message for common store errors and exits.
func HandleError(err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: no such record\n")
	case errors.Is(err, envelope.ErrKeyRequired):
		fmt.Fprintf(os.Stderr, "Error: record is encrypted and no master passphrase is configured\n")
		fmt.Fprintf(os.Stderr, "Set %s or run 'statevault keyring save'\n", config.EnvMasterKey)
	case errors.Is(err, envelope.ErrAuthentication):
		fmt.Fprintf(os.Stderr, "Error: wrong master passphrase\n")
	case errors.Is(err, envelope.ErrIntegrity):
		fmt.Fprintf(os.Stderr, "Error: record is corrupted on disk\n")
		fmt.Fprintf(os.Stderr, "Run 'statevault verify' for a full report\n")
	case errors.Is(err, lock.ErrTimeout):
		fmt.Fprintf(os.Stderr, "Error: timed out waiting for a record lock\n")
		fmt.Fprintf(os.Stderr, "Another process may be holding the record; see 'statevault status'\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
