package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Get prints the record for a key as indented JSON.
func Get(ctx context.Context, keyArg string) {
	s := OpenStore()
	defer s.Close()

	var raw json.RawMessage
	if err := s.Read(ctx, ParseKey(keyArg), &raw); err != nil {
		HandleError(err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		HandleError(err)
	}
	fmt.Println(buf.String())
}
