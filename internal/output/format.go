package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/thediveo/enumflag/v2"
	"gopkg.in/yaml.v3"
)

// Format selects how results are written.
type Format enumflag.Flag

const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
)

// FormatIDs maps each format to the names accepted by --format.
var FormatIDs = map[Format][]string{
	FormatText: {"text"},
	FormatJSON: {"json"},
	FormatYAML: {"yaml", "yml"},
}

func (f Format) String() string {
	if ids, ok := FormatIDs[f]; ok {
		return ids[0]
	}
	return "text"
}

// ParseFormat accepts any name in FormatIDs.
func ParseFormat(s string) (Format, error) {
	for f, ids := range FormatIDs {
		for _, id := range ids {
			if id == s {
				return f, nil
			}
		}
	}
	return FormatText, fmt.Errorf("unknown output format %q", s)
}

// WriteStructured encodes v as JSON or YAML. Strings are written as they
// are: encoders escape control characters themselves.
func WriteStructured(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%s is not a structured format", f)
}

// ColorEnabled resolves an output.color setting (auto, always, never) for f.
// auto means color on a terminal unless NO_COLOR is set.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
