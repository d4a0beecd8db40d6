package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares a stored record against a local JSON file and prints a
// line-level diff. Record lines are marked "-", file lines "+".
func Diff(ctx context.Context, keyArg, fileArg string) {
	s := OpenStore()
	defer s.Close()

	var raw json.RawMessage
	if err := s.Read(ctx, ParseKey(keyArg), &raw); err != nil {
		HandleError(err)
	}

	fileData, err := os.ReadFile(fileArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	recordText := prettyJSON(raw)
	fileText := prettyJSON(fileData)

	if recordText == fileText {
		fmt.Println("No differences")
		return
	}
	printLineDiff(recordText, fileText)
	os.Exit(1)
}

// prettyJSON normalizes JSON for comparison so formatting differences do
// not show up as changes. Non-JSON input passes through as-is.
func prettyJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

func printLineDiff(record, local string) {
	dmp := diffmatchpatch.New()

	// Line-mode diff keeps hunks aligned to line boundaries.
	a, b, lineArray := dmp.DiffLinesToChars(record, local)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			fmt.Printf("%s%s\n", prefix, line)
		}
	}
}
