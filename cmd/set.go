package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Set writes a record. The value is taken from the argument, or from stdin
// when the argument is absent or "-". Valid JSON is stored structurally;
// anything else is stored as a plain string.
func Set(ctx context.Context, keyArg, valueArg string) {
	value := readValue(valueArg)

	s := OpenStore()
	defer s.Close()

	k := ParseKey(keyArg)
	if err := s.Write(ctx, k, value); err != nil {
		HandleError(err)
	}
	fmt.Printf("Wrote %s\n", k)
}

func readValue(arg string) any {
	data := []byte(arg)
	if arg == "" || arg == "-" {
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read stdin: %s\n", err)
			os.Exit(1)
		}
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	return string(data)
}
