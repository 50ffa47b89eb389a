package source

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// parseBlame splits the output of "launchctl blame <pid>" into domain and
// label. Blame reasons such as "speculative" or "ipc (mach)" are not
// service paths and report ok=false.
func parseBlame(out string) (domain, label string, ok bool) {
	line := strings.TrimSpace(out)
	if !strings.Contains(line, "/") {
		return "", "", false
	}
	domain, label, _ = strings.Cut(line, "/")
	// gui/501/com.example.app
	if domain == "gui" || domain == "user" {
		if uid, rest, found := strings.Cut(label, "/"); found {
			domain = domain + "/" + uid
			label = rest
		}
	}
	return domain, label, label != ""
}

// keepAlive reports whether an XML plist asks launchd to keep the job
// running. KeepAlive is either a bool or a dict of conditions; a dict means
// launchd restarts the job at least some of the time.
func keepAlive(data []byte) (bool, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	var currentKey string
	var dictDepth int

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "dict":
				dictDepth++
				if dictDepth == 2 && currentKey == "KeepAlive" {
					return true, nil
				}
				if dictDepth > 1 {
					currentKey = ""
				}
			case "key":
				if dictDepth == 1 {
					var key string
					if err := decoder.DecodeElement(&key, &t); err != nil {
						return false, err
					}
					currentKey = key
				}
			case "true", "false":
				if dictDepth == 1 && currentKey == "KeepAlive" {
					return t.Name.Local == "true", nil
				}
				currentKey = ""
			default:
				if dictDepth == 1 {
					currentKey = ""
				}
			}
		case xml.EndElement:
			if t.Name.Local == "dict" {
				dictDepth--
			}
		}
	}
}
