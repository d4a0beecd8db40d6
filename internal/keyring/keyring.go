// Package keyring stores the master passphrase in the OS keyring, keyed
// by store ID so multiple stores on one machine keep separate entries.
package keyring

import (
	"github.com/zalando/go-keyring"
)

const serviceName = "statevault"

// SavePassphrase stores a master passphrase in the OS keyring
func SavePassphrase(storeID string, passphrase string) error {
	return keyring.Set(serviceName, storeID, passphrase)
}

// GetPassphrase retrieves a master passphrase from the OS keyring
func GetPassphrase(storeID string) (string, error) {
	return keyring.Get(serviceName, storeID)
}

// DeletePassphrase removes a master passphrase from the OS keyring
func DeletePassphrase(storeID string) error {
	return keyring.Delete(serviceName, storeID)
}

// HasPassphrase checks if a master passphrase is stored in the keyring
func HasPassphrase(storeID string) bool {
	_, err := keyring.Get(serviceName, storeID)
	return err == nil
}
