package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// ReadTickersFromCSV reads ticker symbols from the first column of a CSV
// file. The first row is a header.
func ReadTickersFromCSV(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var tickers []string
	for _, record := range records[1:] { // Skip header
		if len(record) == 0 {
			continue
		}
		tickers = append(tickers, record[0])
	}

	return NormalizeTickers(tickers), nil
}

// NormalizeTickers upper-cases and trims symbols, dropping blanks and
// duplicates while keeping the first-seen order.
func NormalizeTickers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
