// Package pathres maps the names a kernel hands out for open objects back to
// ordinary filesystem paths and decides whether such a path falls under a
// target.
package pathres

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pranshuparmar/witl/pkg/model"
)

// Style selects the path grammar used for canonical forms.
type Style int

const (
	StylePOSIX Style = iota
	StyleWindows
)

// NativeStyle is the style of the running OS.
func NativeStyle() Style {
	if runtime.GOOS == "windows" {
		return StyleWindows
	}
	return StylePOSIX
}

func (s Style) separator() string {
	if s == StyleWindows {
		return `\`
	}
	return "/"
}

// Matcher compares canonical paths. The zero value is POSIX and case-insensitive.
type Matcher struct {
	Style         Style
	CaseSensitive bool
}

func NewMatcher(caseSensitive bool) Matcher {
	return Matcher{Style: NativeStyle(), CaseSensitive: caseSensitive}
}

// Canonical returns the absolute, cleaned form of p with no trailing
// separator (roots keep theirs). Relative paths are made absolute against
// the working directory. ok is false when p cannot be expressed in the
// matcher's style.
func (m Matcher) Canonical(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if m.Style == StyleWindows {
		p = stripWin32Prefix(p)
		if c, ok := cleanWindows(p); ok {
			return c, true
		}
		if runtime.GOOS != "windows" {
			return "", false
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", false
		}
		return cleanWindows(abs)
	}

	if !strings.HasPrefix(p, "/") {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", false
		}
		p = filepath.ToSlash(abs)
	}
	return path.Clean(p), true
}

// Key is the form used for comparisons: canonical, case folded unless the
// matcher is case sensitive.
func (m Matcher) Key(canonical string) string {
	if m.CaseSensitive {
		return canonical
	}
	return strings.ToLower(canonical)
}

// Contains reports whether p is dir itself or lies beneath it. Both arguments
// must already be canonical.
func (m Matcher) Contains(dir, p string) bool {
	d, k := m.Key(dir), m.Key(p)
	if d == k {
		return true
	}
	sep := m.Style.separator()
	if !strings.HasSuffix(d, sep) {
		d += sep
	}
	return strings.HasPrefix(k, d)
}

// Matches decides whether a handle refers to the target: same object by
// identity, same path, or (for directory targets) a path beneath it.
func (m Matcher) Matches(target model.TargetPath, h model.HandleRecord) bool {
	if !target.ID.IsZero() && !h.ID.IsZero() && target.ID == h.ID {
		return true
	}
	if h.Resolved == nil {
		return false
	}
	if target.IsDir {
		return m.Contains(target.Canonical, *h.Resolved)
	}
	return m.Key(target.Canonical) == m.Key(*h.Resolved)
}

func stripWin32Prefix(p string) string {
	for _, pre := range []string{`\\?\UNC\`, `\??\UNC\`, `//?/UNC/`} {
		if hasPrefixFold(p, pre) {
			return `\\` + p[len(pre):]
		}
	}
	for _, pre := range []string{`\\?\`, `\??\`, `\\.\`, `//?/`, `//./`} {
		if strings.HasPrefix(p, pre) {
			return p[len(pre):]
		}
	}
	return p
}

// cleanWindows cleans a drive-letter or UNC path. Drive-relative ("C:foo")
// and rooted-without-drive ("\foo") forms are rejected.
func cleanWindows(p string) (string, bool) {
	p = strings.ReplaceAll(p, "/", `\`)

	var vol, rest string
	unc := false
	switch {
	case len(p) >= 2 && isLetter(p[0]) && p[1] == ':':
		vol = strings.ToUpper(p[:1]) + ":"
		rest = p[2:]
		if rest == "" {
			rest = `\`
		}
		if !strings.HasPrefix(rest, `\`) {
			return "", false
		}
	case strings.HasPrefix(p, `\\`):
		parts := strings.SplitN(p[2:], `\`, 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", false
		}
		unc = true
		vol = `\\` + parts[0] + `\` + parts[1]
		rest = `\`
		if len(parts) == 3 {
			rest += parts[2]
		}
	default:
		return "", false
	}

	cleaned := path.Clean(strings.ReplaceAll(rest, `\`, "/"))
	if cleaned == "/" {
		if unc {
			return vol, true
		}
		return vol + `\`, true
	}
	return vol + strings.ReplaceAll(cleaned, "/", `\`), true
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
