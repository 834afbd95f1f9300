package csvcodec

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Encode writes a header row followed by one row per record, laying each
// record out in the order of columns. Zero records still produce the header.
func Encode(columns []string, records []Record) ([]byte, error) {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)
	writer.UseCRLF = true

	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(columns))

	for _, record := range records {
		for i, column := range columns {
			row[i], _ = record.Get(column)
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}

	return buf.Bytes(), nil
}
