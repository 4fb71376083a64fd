// Package srg reads, writes and merges symbol remapping tables.
//
// A table maps side-specific (obfuscated) identifiers to their renamed
// identifiers for four entity kinds. Client and server tables are merged by
// moving every mapping the two sides agree on into a shared table.
package srg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"fmlsetup/internal/fileutil"
)

// Kind is the entity tag that starts every table line.
type Kind string

const (
	Package Kind = "PK:"
	Class   Kind = "CL:"
	Field   Kind = "FD:"
	Method  Kind = "MD:"
)

// Kinds lists the entity kinds in serialization order.
var Kinds = []Kind{Package, Class, Field, Method}

// arity is the number of tokens after the tag.
func (k Kind) arity() int {
	if k == Method {
		return 4
	}
	return 2
}

func (k Kind) valid() bool {
	switch k {
	case Package, Class, Field, Method:
		return true
	}
	return false
}

var (
	// ErrMalformed indicates a line that is not a valid table entry.
	ErrMalformed = errors.New("malformed symbol table line")

	// ErrMissingInput indicates a side table file does not exist.
	ErrMissingInput = errors.New("symbol table not found")
)

// ParseError locates a malformed line.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at line %d: %q", ErrMalformed, e.Line, e.Text)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

// SymbolTable holds one mapping per entity kind. Method keys and values carry
// their descriptor: "owner/name (I)V".
type SymbolTable map[Kind]map[string]string

// NewSymbolTable returns an empty table with all four kinds present.
func NewSymbolTable() SymbolTable {
	t := make(SymbolTable, len(Kinds))
	for _, k := range Kinds {
		t[k] = make(map[string]string)
	}
	return t
}

// Len returns the total number of entries.
func (t SymbolTable) Len() int {
	n := 0
	for _, m := range t {
		n += len(m)
	}
	return n
}

// Clone returns a deep copy.
func (t SymbolTable) Clone() SymbolTable {
	c := NewSymbolTable()
	for k, m := range t {
		if c[k] == nil {
			c[k] = make(map[string]string, len(m))
		}
		for key, value := range m {
			c[k][key] = value
		}
	}
	return c
}

// Parse reads a table. Blank lines are skipped; CRLF endings are accepted.
func Parse(r io.Reader) (SymbolTable, error) {
	t := NewSymbolTable()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		kind := Kind(fields[0])
		if !kind.valid() || len(fields)-1 != kind.arity() {
			return nil, &ParseError{Line: lineNo, Text: line}
		}

		if kind == Method {
			t[kind][fields[1]+" "+fields[2]] = fields[3] + " " + fields[4]
		} else {
			t[kind][fields[1]] = fields[2]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadFile parses the table stored at path.
func ReadFile(path string) (SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteTo serializes the table grouped by kind in PK, CL, FD, MD order with
// keys sorted within each kind.
func (t SymbolTable) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, kind := range Kinds {
		entries := t[kind]
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			written, err := fmt.Fprintf(bw, "%s %s %s\n", kind, key, entries[key])
			n += int64(written)
			if err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// WriteFile atomically replaces path with the serialized table.
func (t SymbolTable) WriteFile(path string) error {
	return fileutil.WriteAtomic(path, 0644, func(w io.Writer) error {
		_, err := t.WriteTo(w)
		return err
	})
}
