//go:build windows

package pathres

import (
	"strings"

	"golang.org/x/sys/windows"
)

// NewNativeResolver snapshots the current drive letter and volume mount
// mappings.
func NewNativeResolver(m Matcher) *Resolver {
	return NewResolver(m, WithDevices(dosDevices()), WithVolumes(volumeMounts()))
}

func dosDevices() map[string]string {
	devices := make(map[string]string)
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return devices
	}
	buf := make([]uint16, windows.MAX_PATH)
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		drive := string(rune('A'+i)) + ":"
		name, err := windows.UTF16PtrFromString(drive)
		if err != nil {
			continue
		}
		n, err := windows.QueryDosDevice(name, &buf[0], uint32(len(buf)))
		if err != nil || n == 0 {
			continue
		}
		// the result is a multi-string; the first entry is the live mapping
		target := windows.UTF16ToString(buf[:n])
		if strings.HasPrefix(target, `\??\`) {
			// SUBST drives point at another path rather than a device
			continue
		}
		devices[target] = drive
	}
	return devices
}

func volumeMounts() map[string]string {
	mounts := make(map[string]string)
	name := make([]uint16, windows.MAX_PATH)
	h, err := windows.FindFirstVolume(&name[0], uint32(len(name)))
	if err != nil {
		return mounts
	}
	defer windows.FindVolumeClose(h)

	for {
		vol := windows.UTF16ToString(name)
		paths := make([]uint16, windows.MAX_PATH)
		var needed uint32
		if err := windows.GetVolumePathNamesForVolumeName(&name[0], &paths[0], uint32(len(paths)), &needed); err == nil {
			if first := windows.UTF16ToString(paths); first != "" {
				// \\?\Volume{guid}\ -> Volume{guid}
				key := strings.Trim(strings.TrimPrefix(vol, `\\?\`), `\`)
				mounts[key] = first
			}
		}
		if err := windows.FindNextVolume(h, &name[0], uint32(len(name))); err != nil {
			break
		}
	}
	return mounts
}
