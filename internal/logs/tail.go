package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes = 1024 * 1024
	defaultPoll  = 250 * time.Millisecond
)

// Matcher reports whether a line should be shown. A nil Matcher keeps every line.
type Matcher func(line string) bool

// Last returns up to limit matching lines from the end of path and the file
// offset following them. A missing file yields no lines and offset zero.
func Last(path string, limit int, match Matcher) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, func(line string) {
		if match != nil && !match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// Follow emits matching lines appended to path after offset until ctx ends
// or emit returns an error. poll <= 0 uses a quarter second.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, match Matcher, emit func(string) error) error {
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, func(line string) error {
			if match != nil && !match(line) {
				return nil
			}
			return emit(line)
		})
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	var emitErr error
	consumed, err := scanLines(file, func(line string) {
		if emitErr == nil {
			emitErr = emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	if emitErr != nil {
		return offset, emitErr
	}
	return offset + consumed, nil
}

// scanLines feeds every complete line to fn and returns the bytes consumed.
// A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}

// ForVideo matches JSON records whose video_path contains substr.
func ForVideo(substr string) Matcher {
	return fieldContains("video_path", substr)
}

// ForEvent matches JSON records whose event_type or event equals name.
func ForEvent(name string) Matcher {
	return func(line string) bool {
		record, ok := decode(line)
		if !ok {
			return false
		}
		return stringField(record, "event_type") == name || stringField(record, "event") == name
	}
}

// AtLeast matches JSON records at or above level (debug, info, warn, error).
func AtLeast(level string) Matcher {
	floor := levelRank(level)
	return func(line string) bool {
		record, ok := decode(line)
		if !ok {
			return true
		}
		return levelRank(stringField(record, "level")) >= floor
	}
}

// All combines matchers; nil entries are ignored.
func All(matchers ...Matcher) Matcher {
	var active []Matcher
	for _, m := range matchers {
		if m != nil {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, m := range active {
			if !m(line) {
				return false
			}
		}
		return true
	}
}

func fieldContains(field, substr string) Matcher {
	return func(line string) bool {
		record, ok := decode(line)
		if !ok {
			return false
		}
		return strings.Contains(stringField(record, field), substr)
	}
}

func decode(line string) (map[string]any, bool) {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, false
	}
	return record, true
}

func stringField(record map[string]any, key string) string {
	value, _ := record[key].(string)
	return value
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}
