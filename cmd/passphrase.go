package cmd

import (
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/coderelay/statevault/internal/envelope"
)

// ReadPassphrase prompts for a passphrase without echoing it.
// The caller is responsible for envelope.ClearBytes on the result.
func ReadPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return pass, nil
}

// ReadPassphraseConfirm reads a passphrase twice and ensures both entries
// match.
func ReadPassphraseConfirm() ([]byte, error) {
	first, err := ReadPassphrase("Enter passphrase: ")
	if err != nil {
		return nil, err
	}
	defer envelope.ClearBytes(first)

	second, err := ReadPassphrase("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	defer envelope.ClearBytes(second)

	if !envelope.ConstantTimeCompare(first, second) {
		return nil, fmt.Errorf("passphrases do not match")
	}

	result := make([]byte, len(first))
	copy(result, first)
	return result, nil
}
