package cmd

import (
	"context"
	"fmt"
	"os"
)

// Verify integrity-checks every record and reports corruption, drift from
// the manifest index and untracked records. Exits non-zero when anything
// is wrong. No passphrase is required; verification never decrypts.
func Verify(ctx context.Context) {
	s := OpenStore()
	defer s.Close()

	report, err := s.Verify(ctx)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("OK: %d\n", report.OK)
	for _, k := range report.Corrupt {
		fmt.Printf("CORRUPT:   %s\n", k)
	}
	for _, k := range report.Drifted {
		fmt.Printf("DRIFTED:   %s\n", k)
	}
	for _, k := range report.Untracked {
		fmt.Printf("UNTRACKED: %s\n", k)
	}

	if len(report.Corrupt)+len(report.Drifted)+len(report.Untracked) > 0 {
		os.Exit(1)
	}
}
