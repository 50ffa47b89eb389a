//go:build linux

package proc

import (
	"os"
	"strconv"
	"strings"
)

var passwdFile = "/etc/passwd"

func lookupUser(uid int) string {
	if uid == 0 {
		return "root"
	}
	// Try to resolve username from /etc/passwd
	uidStr := strconv.Itoa(uid)
	passwd, err := os.ReadFile(passwdFile)
	if err == nil {
		lines := strings.Split(string(passwd), "\n")
		for _, line := range lines {
			fields := strings.Split(line, ":")
			if len(fields) > 2 && fields[2] == uidStr {
				return fields[0]
			}
		}
	}
	return uidStr
}
