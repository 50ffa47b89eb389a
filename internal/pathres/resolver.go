package pathres

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrUnresolvableName = errors.New("unresolvable object name")

const deletedSuffix = " (deleted)"

// Resolver turns raw kernel object names into canonical paths. It holds a
// snapshot of the device and volume mappings taken when it was built, so a
// Resolver must only live as long as one scan.
type Resolver struct {
	matcher Matcher

	// devices maps lower-cased NT device names ("\device\harddiskvolume3")
	// to drive letters ("C:")
	devices map[string]string
	// volumes maps lower-cased volume GUID names ("volume{...}") to the
	// directory they are mounted on
	volumes map[string]string
}

type Option func(*Resolver)

// WithDevices installs an NT device name to drive letter table.
func WithDevices(devices map[string]string) Option {
	return func(r *Resolver) {
		for dev, drive := range devices {
			r.devices[strings.ToLower(strings.TrimSuffix(dev, `\`))] = strings.ToUpper(strings.TrimSuffix(drive, `\`))
		}
	}
}

// WithVolumes installs a volume GUID to mount directory table.
func WithVolumes(volumes map[string]string) Option {
	return func(r *Resolver) {
		for vol, dir := range volumes {
			r.volumes[strings.ToLower(strings.Trim(vol, `\`))] = dir
		}
	}
}

func NewResolver(m Matcher, opts ...Option) *Resolver {
	r := &Resolver{
		matcher: m,
		devices: make(map[string]string),
		volumes: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Matcher() Matcher {
	return r.matcher
}

// StripDeleted removes the marker Linux appends to links of unlinked files.
func StripDeleted(raw string) (string, bool) {
	if strings.HasSuffix(raw, deletedSuffix) {
		return strings.TrimSuffix(raw, deletedSuffix), true
	}
	return raw, false
}

// Resolve maps a raw object name to a canonical path.
func (r *Resolver) Resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnresolvableName)
	}
	if strings.HasPrefix(raw, `\`) || (len(raw) >= 2 && isLetter(raw[0]) && raw[1] == ':') {
		return r.resolveWindows(raw)
	}
	if strings.HasPrefix(raw, "/") {
		// memfd and similar anonymous objects look like paths but are not
		if strings.HasPrefix(raw, "/memfd:") || strings.HasPrefix(raw, "/SYSV") {
			return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
		}
		return path.Clean(raw), nil
	}
	// socket:[n], pipe:[n], anon_inode:..., [heap] and friends
	return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
}

func (r *Resolver) resolveWindows(raw string) (string, error) {
	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(lower, `\device\mup\`):
		return r.unc(raw[len(`\Device\Mup\`):], raw)
	case strings.HasPrefix(lower, `\device\lanmanredirector\`):
		rest := raw[len(`\Device\LanmanRedirector\`):]
		// \;X:0000000000012345\server\share\...
		if strings.HasPrefix(rest, ";") {
			i := strings.Index(rest, `\`)
			if i < 0 {
				return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
			}
			rest = rest[i+1:]
		}
		return r.unc(rest, raw)
	case strings.HasPrefix(lower, `\device\`):
		return r.device(raw)
	}

	for _, pre := range []string{`\??\`, `\\?\`} {
		if strings.HasPrefix(lower, pre+"volume{") {
			return r.volume(raw[len(pre):], raw)
		}
	}

	if c, ok := cleanWindows(stripWin32Prefix(raw)); ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
}

func (r *Resolver) unc(rest, raw string) (string, error) {
	c, ok := cleanWindows(`\\` + rest)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
	}
	return c, nil
}

func (r *Resolver) device(raw string) (string, error) {
	// \Device\HarddiskVolume3\Users\x -> device "\device\harddiskvolume3", rest "\Users\x"
	parts := strings.SplitN(raw[len(`\Device\`):], `\`, 2)
	dev := strings.ToLower(`\Device\` + parts[0])
	drive, ok := r.devices[dev]
	if !ok {
		return "", fmt.Errorf("%w: no drive for device %q", ErrUnresolvableName, parts[0])
	}
	rest := `\`
	if len(parts) == 2 {
		rest += parts[1]
	}
	c, ok := cleanWindows(drive + rest)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
	}
	return c, nil
}

func (r *Resolver) volume(name, raw string) (string, error) {
	parts := strings.SplitN(name, `\`, 2)
	dir, ok := r.volumes[strings.ToLower(parts[0])]
	if !ok {
		return "", fmt.Errorf("%w: volume %q is not mounted", ErrUnresolvableName, parts[0])
	}
	joined := dir
	if len(parts) == 2 && parts[1] != "" {
		joined = strings.TrimSuffix(dir, `\`) + `\` + parts[1]
	}
	c, ok := cleanWindows(joined)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableName, raw)
	}
	return c, nil
}

// ToDevice maps a canonical drive-letter or UNC path back to its NT device
// form, the inverse of Resolve.
func (r *Resolver) ToDevice(canonical string) (string, error) {
	c, ok := cleanWindows(stripWin32Prefix(canonical))
	if !ok {
		return "", fmt.Errorf("%w: %q is not a windows path", ErrUnresolvableName, canonical)
	}
	if strings.HasPrefix(c, `\\`) {
		return `\Device\Mup\` + c[2:], nil
	}
	drive := c[:2]
	for dev, d := range r.devices {
		if d == drive {
			return canonicalDeviceName(dev) + strings.TrimSuffix(c[2:], `\`), nil
		}
	}
	return "", fmt.Errorf("%w: no device for drive %s", ErrUnresolvableName, drive)
}

// canonicalDeviceName restores the conventional casing of a lower-cased
// device key for display.
func canonicalDeviceName(key string) string {
	name := strings.TrimPrefix(key, `\device\`)
	if strings.HasPrefix(name, "harddiskvolume") {
		return `\Device\HarddiskVolume` + strings.TrimPrefix(name, "harddiskvolume")
	}
	return `\Device\` + name
}
