package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("sink is closed")

// maxLine bounds the size of one encoded item when reading back.
const maxLine = 4 << 20

// JSONLSink appends items to a file as JSON lines.
//
// The file is created (or truncated) by NewJSONLSink. Items reads it back, so
// the recorded contents survive the process and can be inspected by hand.
type JSONLSink[T any] struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// NewJSONLSink creates an empty sink at path.
func NewJSONLSink[T any](path string) (*JSONLSink[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink file: %w", err)
	}
	return &JSONLSink[T]{path: path, file: f}, nil
}

// Path returns the file the sink writes to.
func (s *JSONLSink[T]) Path() string { return s.path }

// Write implements flow.Sink. A batch is written with a single write call.
func (s *JSONLSink[T]) Write(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf []byte
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode item: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	return nil
}

// Items reads back every recorded item in file order.
func (s *JSONLSink[T]) Items() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	items := []T{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for line := 1; scanner.Scan(); line++ {
		var item T
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			return nil, fmt.Errorf("%s:%d: failed to decode item: %w", s.path, line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return items, nil
}

// Close closes the file. Items keeps working after Close.
func (s *JSONLSink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
