package cmd

import (
	"context"
	"fmt"
	"os"
)

// Migrate re-encrypts every plaintext record under the master passphrase.
// When no passphrase is configured yet, one is prompted for and becomes the
// store's key from here on.
func Migrate(ctx context.Context) {
	cfg := LoadConfig()
	if len(cfg.MasterKey) == 0 {
		pass, err := ReadPassphraseConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		cfg.MasterKey = pass
	}

	s := openWithConfig(cfg)
	defer s.Close()

	migrated, err := s.MigrateToEncrypted(ctx)
	if err != nil {
		HandleError(err)
	}

	if migrated == 0 {
		fmt.Println("All records already encrypted")
		return
	}
	fmt.Printf("Migrated %d record(s) to encrypted form\n", migrated)
}
