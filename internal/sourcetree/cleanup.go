package sourcetree

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

var (
	// blank line between a case label and its body
	blankAfterLabel = regexp.MustCompile(`(?m)((case|default).+\r?\n)\r?\n`)
	// blank line between a case body and the next label
	blankBeforeLabel = regexp.MustCompile(`(?m)\r?\n(\r?\n[ \t]+(case|default))`)
)

// CleanupSource tidies switch statements in every .java file below dir and
// returns the total number of substitutions made.
func CleanupSource(dir string) (int, error) {
	logging.Info("cleaning up decompiled source", "dir", dir)

	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".java") {
			return nil
		}

		n, err := CleanupFile(path)
		if err != nil {
			return err
		}
		if n > 0 {
			logging.Debug("cleaned source file", "path", path, "fixes", n)
		}
		total += n
		return nil
	})
	return total, err
}

// CleanupFile removes the blank line after each case/default label and the
// blank line before the next label. The file is rewritten only when
// something changed; the number of substitutions is returned.
func CleanupFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	text, before := keepFirstGroup(blankAfterLabel, string(data))
	text, after := keepFirstGroup(blankBeforeLabel, text)
	count := before + after
	if count == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return count, fileutil.AtomicWrite(path, []byte(text), info.Mode().Perm())
}

// keepFirstGroup replaces every match of re with its first capture group.
func keepFirstGroup(re *regexp.Regexp, s string) (string, int) {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, 0
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(s[m[2]:m[3]])
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), len(matches)
}
