package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ReadCSV decodes and parses a CSV file. Cells of rows shorter than the
// header are present but empty; malformed lines are skipped with a warning.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	text, enc, err := Decode(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	b := newTableBuilder(true)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("read csv: %w", err)
			}
			b.warn(perr.StartLine, fmt.Sprintf("parse error: %v", perr.Err))
			continue
		}
		line, _ := reader.FieldPos(0)
		b.feed(record, line)
	}

	t, err := b.finish()
	if err != nil {
		return nil, err
	}
	t.Encoding = enc
	return t, nil
}
