package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/coderelay/statevault/internal/key"
)

// Ls prints the keys stored under an optional prefix, one per line.
// No passphrase is required; keys are directory structure, not record data.
func Ls(ctx context.Context, prefixArg string) {
	s := OpenStore()
	defer s.Close()

	var prefix key.Key
	if prefixArg != "" {
		prefix = ParseKey(prefixArg)
	}

	keys, err := s.List(ctx, prefix)
	if err != nil {
		HandleError(err)
	}

	if len(keys) == 0 {
		fmt.Println("No records")
		return
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Println(name)
	}
}
