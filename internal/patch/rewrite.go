// Package patch normalizes unified diffs for the host platform and applies
// them with an external patch tool.
package patch

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NotFound is the target reported for a patch without a "---" header.
const NotFound = "not found"

// headerPrefixes mark the lines whose paths are rewritten.
var headerPrefixes = []string{"+++", "---", "Onl", "dif"}

// RewriteOptions controls Rewrite. Zero values select the host defaults.
type RewriteOptions struct {
	// Find, when non-empty, is replaced by Replace in header lines after
	// backslashes are normalized to forward slashes.
	Find    string
	Replace string

	// Separator is the path separator written into headers.
	Separator byte
	// LineEnding terminates every output line.
	LineEnding string
}

func (o RewriteOptions) withDefaults() RewriteOptions {
	if o.Separator == 0 {
		o.Separator = os.PathSeparator
	}
	if o.LineEnding == "" {
		o.LineEnding = HostLineEnding()
	}
	return o
}

// HostLineEnding returns the platform line terminator.
func HostLineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// Rewrite copies a patch from in to out, converting header paths to the host
// separator and every line ending to the host terminator. It returns the
// target path named by the "---" header (after its second separator, without
// any timestamp), or NotFound.
func Rewrite(in io.Reader, out io.Writer, opts RewriteOptions) (string, error) {
	opts = opts.withDefaults()
	sep := string(opts.Separator)

	br := bufio.NewReader(in)
	bw := bufio.NewWriter(out)
	target := NotFound

	for {
		line, err := br.ReadString('\n')
		if line == "" && err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")

		if isHeader(line) {
			line = strings.ReplaceAll(line, `\`, "/")
			if opts.Find != "" {
				line = strings.ReplaceAll(line, opts.Find, opts.Replace)
			}
			line = strings.ReplaceAll(line, "/", sep)
		}
		if strings.HasPrefix(line, "---") {
			if t, ok := headerTarget(line, sep); ok {
				target = t
			}
		}

		if _, werr := bw.WriteString(line + opts.LineEnding); werr != nil {
			return "", werr
		}
		if err == io.EOF {
			break
		}
	}

	return target, bw.Flush()
}

func isHeader(line string) bool {
	for _, p := range headerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// headerTarget extracts "<rest>" from "--- a<sep>b<sep><rest>\t<timestamp>".
func headerTarget(line, sep string) (string, bool) {
	first := strings.Index(line, sep)
	if first < 0 {
		return "", false
	}
	second := strings.Index(line[first+1:], sep)
	if second < 0 {
		return "", false
	}
	rest := line[first+1+second+1:]
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}

// RewriteFile rewrites src into dst, creating dst's directory if needed.
func RewriteFile(src, dst string, opts RewriteOptions) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	target, err := Rewrite(in, out, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return target, err
}
