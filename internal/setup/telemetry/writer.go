package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// lineCappedWriter wraps an io.Writer and keeps a log file at a bounded
// number of lines by rewriting it from a ring buffer once it grows past
// twice its capacity.
type lineCappedWriter struct {
	writer   io.Writer
	filePath string
	capacity int
	lines    []string
	head     int
	size     int
	seen     int
	mu       sync.Mutex
}

func newLineCappedWriter(writer io.Writer, maxLines int, filePath string) *lineCappedWriter {
	return &lineCappedWriter{
		writer:   writer,
		filePath: filePath,
		capacity: maxLines,
		lines:    make([]string, maxLines),
	}
}

// Write implements io.Writer and maintains the line buffer.
func (w *lineCappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.add(line)

		// Only rewrite once we have seen twice the capacity
		if w.seen == w.capacity*2 {
			if err := w.rewrite(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.seen = w.size
		}
	}

	return n, nil
}

func (w *lineCappedWriter) add(line string) {
	w.lines[w.head] = line

	w.head = (w.head + 1) % w.capacity
	if w.size < w.capacity {
		w.size++
	}

	w.seen++
}

// buffered returns the retained lines in chronological order.
func (w *lineCappedWriter) buffered() []string {
	if w.size == 0 {
		return nil
	}

	result := make([]string, w.size)
	start := (w.head - w.size + w.capacity) % w.capacity

	for i := range w.size {
		result[i] = w.lines[(start+i)%w.capacity]
	}

	return result
}

// rewrite replaces the log file with the buffered lines.
func (w *lineCappedWriter) rewrite() error {
	lines := w.buffered()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	temp.Close()

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows cannot rename over an open file
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = newFile

	return nil
}
