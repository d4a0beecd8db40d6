package cmd

import (
	"context"
	"fmt"
	"os"
)

// Remove deletes records by key. Removing an absent record succeeds.
func Remove(ctx context.Context, keyArgs []string) {
	if len(keyArgs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one key argument\n")
		fmt.Fprintf(os.Stderr, "Usage: statevault rm <key> [key...]\n")
		os.Exit(1)
	}

	s := OpenStore()
	defer s.Close()

	for _, arg := range keyArgs {
		k := ParseKey(arg)
		if err := s.Remove(ctx, k); err != nil {
			HandleError(err)
		}
		fmt.Printf("Removed %s\n", k)
	}
}
