package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink appends records as JSON lines to a local file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileSink opens path for appending, creating parent directories.
func OpenFileSink(path string) (*FileSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit ledger path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit ledger dir: %w", err)
		}
	}
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit ledger: %w", err)
	}
	return &FileSink{file: file}, nil
}

// Append writes one line and syncs it to disk.
func (s *FileSink) Append(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("audit ledger is closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync audit ledger: %w", err)
	}
	return nil
}

// Close closes the ledger file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
