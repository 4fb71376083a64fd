// Package names reconciles the human-readable name tables (fields.csv,
// methods.csv, params.csv) against the set of identifiers both sides share.
package names

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

const (
	// DefaultKey is the key column of the field and method tables.
	DefaultKey = "searge"
	// ParamKey is the key column of the parameter table.
	ParamKey = "param"

	// SideColumn marks which distribution a name belongs to.
	SideColumn = "side"
	// SideShared is the side value for names present in both distributions.
	SideShared = "2"
)

var (
	// ErrMissingColumn is returned when the key column is not in the header.
	ErrMissingColumn = errors.New("key column not found")

	// ErrMalformedRow is returned for a row with more fields than the header.
	ErrMalformedRow = errors.New("row has more fields than the header")
)

// Set is the membership view of the shared name set.
type Set interface {
	Contains(name string) bool
}

// MergeCSV copies the rows of r whose key column is in shared to w. Only the
// first row per key is kept, the side column is forced to SideShared (and
// appended to the header when absent), and rows are sorted by key. Column
// order follows the input. It returns the number of rows written.
func MergeCSV(shared Set, r io.Reader, w io.Writer, key string) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("%w: %s (empty input)", ErrMissingColumn, key)
		}
		return 0, err
	}
	header = append([]string(nil), header...)
	width := len(header)

	keyIdx := indexOf(header, key)
	if keyIdx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, key)
	}
	sideIdx := indexOf(header, SideColumn)
	if sideIdx < 0 {
		header = append(header, SideColumn)
		sideIdx = len(header) - 1
	}

	seen := make(map[string]struct{})
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if len(record) > width {
			line, _ := reader.FieldPos(0)
			return 0, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrMalformedRow, line, len(record), width)
		}
		if keyIdx >= len(record) {
			continue
		}
		value := record[keyIdx]
		if _, dup := seen[value]; dup || !shared.Contains(value) {
			continue
		}
		seen[value] = struct{}{}

		row := make([]string, len(header))
		copy(row, record)
		row[sideIdx] = SideShared
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][keyIdx] < rows[j][keyIdx]
	})

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return 0, err
	}
	if err := writer.WriteAll(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// MergeCSVFile runs MergeCSV from inPath and atomically writes outPath.
// inPath and outPath may be the same file.
func MergeCSVFile(shared Set, inPath, outPath, key string) (int, error) {
	logging.Info("generating merged csv", "path", inPath, "key", key)

	in, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	var n int
	err = fileutil.WriteAtomic(outPath, 0644, func(w io.Writer) error {
		var err error
		n, err = MergeCSV(shared, in, w, key)
		if err != nil {
			return fmt.Errorf("%s: %w", inPath, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Debug("merged csv written", "path", outPath, "rows", n)
	return n, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
