package events

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/seleknir/webrecorder/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteLog persists an ordered event log as a JSON array. The write is
// atomic: the file appears either with the full log or not at all.
func WriteLog(path string, events []schemas.NetworkEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	data, err := jsonAPI.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal event log: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize event log: %w", err)
	}
	return nil
}

// ReadLog loads an ordered event log written by WriteLog.
func ReadLog(path string) ([]schemas.NetworkEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	var events []schemas.NetworkEvent
	if err := jsonAPI.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse event log %s: %w", path, err)
	}
	return events, nil
}
