package wal

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// rawLine is one parsed `{timestamp}|{pointer}|{body}` line before body
// decoding.
type rawLine struct {
	timestamp int64
	pointer   string
	body      string
}

// parseLine splits a raw WAL line into its three fields. ok is false for
// a blank line (tolerated, not an error) or a line missing a separator
// (malformed).
func parseLine(raw string) (rl rawLine, ok bool) {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return rawLine{}, false
	}

	first := strings.IndexByte(raw, '|')
	if first < 0 {
		return rawLine{}, false
	}
	second := strings.IndexByte(raw[first+1:], '|')
	if second < 0 {
		return rawLine{}, false
	}
	second += first + 1

	ts, err := strconv.ParseInt(raw[:first], 10, 64)
	if err != nil {
		return rawLine{}, false
	}

	return rawLine{
		timestamp: ts,
		pointer:   raw[first+1 : second],
		body:      raw[second+1:],
	}, true
}

// scanSegment walks every line of one segment file in order, invoking fn
// for each non-blank line. fn returning false stops the scan early
// (without error).
func scanSegment(path string, fn func(rawLine) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		rl, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if !fn(rl) {
			return nil
		}
	}
	return scanner.Err()
}

// tailState scans every segment in order and returns the chain pointer
// of the last line written and the total line count, so a Writer can
// resume an existing WAL directory without breaking the chain.
func tailState(dir string, segments []int) (lastPointer string, lineCount int, err error) {
	lastPointer = genesisPointer
	for _, idx := range segments {
		path := segmentPath(dir, idx)
		scanErr := scanSegment(path, func(rl rawLine) bool {
			lastPointer = rl.pointer
			lineCount++
			return true
		})
		if scanErr != nil && !os.IsNotExist(scanErr) {
			return "", 0, scanErr
		}
	}
	return lastPointer, lineCount, nil
}
