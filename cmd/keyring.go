package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/coderelay/statevault/internal/envelope"
	"github.com/coderelay/statevault/internal/keyring"
	"github.com/coderelay/statevault/internal/store"
)

// KeyringSave prompts for the master passphrase, checks it against the
// store and saves it to the OS keyring.
func KeyringSave(ctx context.Context) {
	pass, err := ReadPassphrase("Enter passphrase: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer envelope.ClearBytes(pass)

	cfg := LoadConfig()
	cfg.MasterKey = append([]byte(nil), pass...)
	s := openWithConfig(cfg)
	defer s.Close()

	if err := checkPassphrase(ctx, s); err != nil {
		HandleError(err)
	}

	if err := keyring.SavePassphrase(s.ID(), string(pass)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Passphrase saved to keyring")
}

// checkPassphrase tries to decrypt one encrypted record. A store with no
// encrypted records yet cannot disprove the passphrase, so it passes.
func checkPassphrase(ctx context.Context, s *store.Store) error {
	keys, err := s.List(ctx, nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		var out json.RawMessage
		err := s.Read(ctx, k, &out)
		if errors.Is(err, envelope.ErrAuthentication) {
			return err
		}
		if err == nil {
			return nil
		}
	}
	return nil
}

// KeyringDelete removes the stored passphrase from the OS keyring.
func KeyringDelete() {
	cfg := LoadConfig()
	id := storeID(cfg.Root)
	if id == "" {
		fmt.Println("No passphrase stored in keyring")
		return
	}

	if err := keyring.DeletePassphrase(id); err != nil {
		fmt.Println("No passphrase stored in keyring")
		return
	}
	fmt.Println("Passphrase removed from keyring")
}

// KeyringStatus reports whether a passphrase is stored for this store.
func KeyringStatus() {
	cfg := LoadConfig()
	id := storeID(cfg.Root)
	if id != "" && keyring.HasPassphrase(id) {
		fmt.Println("Passphrase: stored in keyring")
	} else {
		fmt.Println("Passphrase: not stored")
	}
}
