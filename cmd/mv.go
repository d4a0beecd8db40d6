package cmd

import (
	"context"
	"encoding/json"
	"fmt"
)

// Move renames a record atomically: the write to the destination and the
// removal of the source commit together or not at all.
func Move(ctx context.Context, srcArg, dstArg string) {
	s := OpenStore()
	defer s.Close()

	src := ParseKey(srcArg)
	dst := ParseKey(dstArg)

	var value json.RawMessage
	if err := s.Read(ctx, src, &value); err != nil {
		HandleError(err)
	}

	tx := s.Begin()
	if err := tx.StageWrite(dst, value); err != nil {
		HandleError(err)
	}
	if err := tx.StageRemove(src); err != nil {
		HandleError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		HandleError(err)
	}

	fmt.Printf("Moved %s -> %s\n", src, dst)
}
