package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// WriteCSV writes sections to <dir>/<name>.csv and returns the path. Each
// section is a title line, a header line and its rows; sections are
// separated by an empty line. The file is replaced atomically.
func WriteCSV(dir, name string, sections []Section) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	for i, s := range sections {
		if i > 0 {
			if err := w.Write([]string{}); err != nil {
				tmp.Close()
				return "", fmt.Errorf("report: write: %w", err)
			}
		}
		records := [][]string{{s.Title}, s.Header[:]}
		for _, c := range s.Rows {
			records = append(records, c.record())
		}
		if err := w.WriteAll(records); err != nil {
			tmp.Close()
			return "", fmt.Errorf("report: write %s: %w", s.Title, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("report: close: %w", err)
	}

	path := filepath.Join(dir, name+".csv")
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("report: rename: %w", err)
	}
	return path, nil
}
