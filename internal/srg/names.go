package srg

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"fmlsetup/internal/logging"
)

// Generated identifier patterns.
var (
	fieldName  = regexp.MustCompile(`field_[0-9]+_[a-zA-Z_]+$`)
	methodName = regexp.MustCompile(`func_[0-9]+_[a-zA-Z_]+`)
	paramName  = regexp.MustCompile(`p_[\w]+_\d+_`)
)

// overloadMarker in a method value flags a rename conflict rather than a
// genuinely shared method.
const overloadMarker = "#"

// Exceptions maps a qualified method key to its exception/parameter entry.
type Exceptions map[string]string

// ReadExceptions reads a key=value exception file. Lines starting with '#'
// and lines without '=' are ignored.
func ReadExceptions(path string) (Exceptions, error) {
	logging.Info("reading merged exception table", "path", path)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, err
	}
	defer f.Close()

	exc := make(Exceptions)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		exc[key] = value
	}
	return exc, sc.Err()
}

// NameSet is an insertion-ordered set of generated identifier names.
type NameSet struct {
	names []string
	index map[string]struct{}
}

// NewNameSet returns a set holding names in the given order.
func NewNameSet(names ...string) *NameSet {
	s := &NameSet{index: make(map[string]struct{})}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name if absent and reports whether it was added.
func (s *NameSet) Add(name string) bool {
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = struct{}{}
	s.names = append(s.names, name)
	return true
}

// Contains reports membership.
func (s *NameSet) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of names.
func (s *NameSet) Len() int { return len(s.names) }

// Names returns the names in first-seen order.
func (s *NameSet) Names() []string {
	return append([]string(nil), s.names...)
}

// SharedNames collects the generated field, method and parameter names that
// occur in the shared table or the exception table. Entries are scanned in
// sorted key order so the first-seen order is stable across runs.
func SharedNames(shared SymbolTable, exc Exceptions) *NameSet {
	logging.Info("gathering common generated names")
	set := NewNameSet()

	for _, key := range sortedKeys(shared[Field]) {
		if m := fieldName.FindString(shared[Field][key]); m != "" {
			set.Add(m)
		}
	}

	for _, key := range sortedKeys(shared[Method]) {
		value := shared[Method][key]
		if strings.Contains(value, overloadMarker) {
			continue
		}
		if m := methodName.FindString(value); m != "" {
			set.Add(m)
		}
	}

	for _, key := range sortedKeys(exc) {
		for _, m := range paramName.FindAllString(exc[key], -1) {
			set.Add(m)
		}
	}

	return set
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
