package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/coderelay/statevault/internal/envelope"
	"github.com/coderelay/statevault/internal/keyring"
)

// Passwd rotates the master passphrase, re-encrypting every record under
// fresh key derivation parameters.
func Passwd(ctx context.Context) {
	cfg := LoadConfig()
	if len(cfg.MasterKey) == 0 {
		current, err := ReadPassphrase("Enter current passphrase: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		cfg.MasterKey = current
	}

	s := openWithConfig(cfg)
	defer s.Close()

	newPass, err := ReadPassphraseConfirm()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer envelope.ClearBytes(newPass)

	if err := s.Rekey(ctx, newPass); err != nil {
		HandleError(err)
	}

	// Keep the keyring entry current when one exists.
	if keyring.HasPassphrase(s.ID()) {
		if err := keyring.SavePassphrase(s.ID(), string(newPass)); err == nil {
			fmt.Println("Keyring updated with new passphrase")
		}
	}

	fmt.Println("Passphrase changed successfully")
}
