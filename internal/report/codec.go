package report

import (
	"encoding/json"
	"fmt"

	"caravel/internal/validation"
)

// EncodeJSON returns the indented structured form of r.
func EncodeJSON(r validation.Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeJSON parses the structured form written by EncodeJSON.
func DecodeJSON(data []byte) (validation.Report, error) {
	var r validation.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return validation.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
