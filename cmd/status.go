package cmd

import (
	"context"
	"fmt"
	"time"
)

// Status shows the store's operational state: location, encryption,
// record count and any currently held locks. No passphrase is required.
func Status(ctx context.Context) {
	s := OpenStore()
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Store:     %s\n", stats.Root)
	fmt.Printf("ID:        %s\n", stats.ID)
	fmt.Printf("Records:   %d\n", stats.Records)
	if stats.Encrypted {
		fmt.Println("Encrypted: yes")
	} else {
		fmt.Println("Encrypted: no (records are integrity-wrapped plaintext)")
	}
	if !stats.Modified.IsZero() {
		fmt.Printf("Modified:  %s\n", stats.Modified.Format(time.RFC3339))
	}

	if len(stats.Locks) > 0 {
		fmt.Println("\nHeld locks:")
		for _, l := range stats.Locks {
			fmt.Printf("  %s  %s  holders=%d waiters=%d held=%s\n",
				l.Resource, l.Mode, l.Holders, l.Waiters, l.HeldFor.Round(time.Millisecond))
		}
	}
}
