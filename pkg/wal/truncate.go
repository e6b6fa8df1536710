package wal

import (
	"bytes"
	"os"
)

// TruncateLastLine removes the final line from the highest-numbered
// segment of dirPath. Used by the transaction manager's Pop to undo the
// most recent private-WAL append: the caller must Close its Writer
// first, call TruncateLastLine, then reopen a fresh Writer over the same
// directory so lastPointer/lineCount are recomputed from the truncated
// file.
func TruncateLastLine(dirPath string) error {
	segments, err := listSegments(dirPath)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	path := segmentPath(dirPath, segments[len(segments)-1])
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	trimmed := bytes.TrimRight(data, "\n")
	lastNL := bytes.LastIndexByte(trimmed, '\n')

	var kept []byte
	if lastNL >= 0 {
		kept = data[:lastNL+1]
	}

	return os.WriteFile(path, kept, 0o644)
}
