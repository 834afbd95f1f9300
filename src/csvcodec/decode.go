package csvcodec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var ErrMalformed = errors.New("malformed table")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses a header-led comma separated table. It returns the header
// in file order and one record per data row. An empty input yields no
// columns and no records.
func Decode(data []byte) ([]string, []Record, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header: %v", ErrMalformed, err)
	}

	columns := make([]string, len(header))
	copy(columns, header)
	index := indexColumns(columns)

	var records []Record

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		if len(row) > len(columns) {
			return nil, nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformed, line, len(row), len(columns))
		}

		records = append(records, Record{index: index, values: row})
	}

	return columns, records, nil
}
