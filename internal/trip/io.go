package trip

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedImport is wrapped when an import payload fails the shape check.
// A malformed payload is rejected whole; nothing from it reaches Normalize.
var ErrMalformedImport = errors.New("malformed trip import")

// DecodeJSON reads a JSON array of {"entry": "...", "exit": "..."} objects.
// Every element must carry both fields as strings. Date validity is not
// checked here; Normalize skips undecodable items individually.
func DecodeJSON(r io.Reader) ([]Raw, error) {
	var items []map[string]any
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedImport)
	}

	out := make([]Raw, 0, len(items))
	for i, item := range items {
		entry, ok := item["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: item %d: entry missing or not a string", ErrMalformedImport, i)
		}
		exit, ok := item["exit"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: item %d: exit missing or not a string", ErrMalformedImport, i)
		}
		out = append(out, Raw{Entry: entry, Exit: exit})
	}
	return out, nil
}

// EncodeJSON writes s as an indented JSON array in ascending entry order.
func EncodeJSON(w io.Writer, s Set) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Raw())
}

// DecodeCSV reads rows of entry,exit. A leading "entry,exit" header is
// optional; any row without exactly two columns rejects the whole file.
func DecodeCSV(r io.Reader) ([]Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}

	out := make([]Raw, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "entry") &&
			strings.EqualFold(strings.TrimSpace(row[1]), "exit") {
			continue
		}
		out = append(out, Raw{Entry: strings.TrimSpace(row[0]), Exit: strings.TrimSpace(row[1])})
	}
	return out, nil
}

// EncodeCSV writes s with an entry,exit header.
func EncodeCSV(w io.Writer, s Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"entry", "exit"}); err != nil {
		return err
	}
	for _, r := range s.Raw() {
		if err := cw.Write([]string{r.Entry, r.Exit}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
