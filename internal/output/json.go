package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wesleyorama2/surge/internal/engine"
)

// WriteJSON writes sum to w as indented JSON.
func WriteJSON(w io.Writer, sum *engine.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// WriteJSONFile writes sum to path, creating parent directories as needed.
func WriteJSONFile(path string, sum *engine.Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteJSON(f, sum); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
