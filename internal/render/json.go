package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON writes v as indented JSON to dir/account/name.json, creating
// the directory tree as needed. It returns the written path.
func WriteJSON(dir, account, name string, v any) (string, error) {
	outDir := filepath.Join(dir, account)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("render: create output dir: %w", err)
	}

	path := filepath.Join(outDir, name+".json")
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render: marshal %s: %w", name, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("render: write %s: %w", path, err)
	}
	return path, nil
}
