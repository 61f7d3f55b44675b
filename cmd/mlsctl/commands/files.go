package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"mlsgroup/internal/message"
)

func readMessage(path string) (*message.Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := message.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func writeMessage(path string, m *message.Message) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, m.Bytes(), 0o600)
}
