package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RawOpening is one row of the source feed before normalization.
type RawOpening struct {
	Code  string `json:"eco"`
	Name  string `json:"name"`
	Moves string `json:"pgn"` // numbered notation, e.g. "1. e4 e5 2. Nf3"
}

// ErrUnknownFormat is returned by LoadFile for unsupported file extensions.
var ErrUnknownFormat = errors.New("unknown source format")

// LoadFile reads openings from a .tsv or .json file.
func LoadFile(path string) ([]RawOpening, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return ReadTSV(f)
	case ".json":
		return ReadJSON(f)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// LoadFiles reads each path in order and concatenates the rows.
func LoadFiles(paths []string) ([]RawOpening, error) {
	var out []RawOpening
	for _, p := range paths {
		rows, err := LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ReadTSV parses the lichess chess-openings layout: a header row naming the
// eco, name and pgn columns, then one opening per line. Fields are split on
// tabs only; quotes are ordinary text. Extra columns are ignored.
func ReadTSV(r io.Reader) ([]RawOpening, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, nil
	}
	header := splitTSV(strings.TrimPrefix(sc.Text(), "\ufeff"))
	cols := map[string]int{"eco": -1, "name": -1, "pgn": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[h]; ok {
			cols[h] = i
		}
	}
	for name, i := range cols {
		if i < 0 {
			return nil, fmt.Errorf("missing %q column in header %v", name, header)
		}
	}

	var out []RawOpening
	line := 1
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		row := splitTSV(text)
		out = append(out, RawOpening{
			Code:  strings.TrimSpace(field(row, cols["eco"])),
			Name:  norm.NFC.String(strings.TrimSpace(field(row, cols["name"]))),
			Moves: strings.TrimSpace(field(row, cols["pgn"])),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return out, nil
}

func splitTSV(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\r"), "\t")
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// ReadJSON accepts either a bare array of openings or an object wrapping
// them under "openings".
func ReadJSON(r io.Reader) ([]RawOpening, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Openings *[]RawOpening `json:"openings"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Openings != nil {
		return normalizeNames(*wrapped.Openings), nil
	}

	var rows []RawOpening
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse openings as object or array: %w", err)
	}
	return normalizeNames(rows), nil
}

func normalizeNames(rows []RawOpening) []RawOpening {
	for i := range rows {
		rows[i].Name = norm.NFC.String(strings.TrimSpace(rows[i].Name))
	}
	return rows
}
