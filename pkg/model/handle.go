package model

import "strings"

// ObjectType is the kind of kernel object a handle refers to.
// It is resolved once when the HandleRecord is created.
type ObjectType int

const (
	ObjectUnknown ObjectType = iota
	ObjectFile
	ObjectDirectory
	ObjectDevice
	ObjectSocket
	ObjectPipe
	ObjectOther
)

var objectTypeNames = map[ObjectType]string{
	ObjectUnknown:   "unknown",
	ObjectFile:      "file",
	ObjectDirectory: "directory",
	ObjectDevice:    "device",
	ObjectSocket:    "socket",
	ObjectPipe:      "pipe",
	ObjectOther:     "other",
}

func (t ObjectType) String() string {
	if s, ok := objectTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t ObjectType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ObjectType) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for k, v := range objectTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	*t = ObjectUnknown
	return nil
}

// HandleKind says how the process references the object.
type HandleKind string

const (
	KindFD      HandleKind = "fd"
	KindCwd     HandleKind = "cwd"
	KindRoot    HandleKind = "root"
	KindExe     HandleKind = "exe"
	KindMmap    HandleKind = "mmap"
	KindSession HandleKind = "rm-session" // registered through the Windows Restart Manager
)

// Access is the access mode a handle was opened with.
type Access string

const (
	AccessUnknown   Access = ""
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "read-write"
)

// FileID identifies a filesystem object independent of the path used to reach it.
type FileID struct {
	Dev uint64 `json:"dev" yaml:"dev"`
	Ino uint64 `json:"ino" yaml:"ino"`
}

func (id FileID) IsZero() bool {
	return id.Dev == 0 && id.Ino == 0
}

// HandleRecord is one open handle found during enumeration.
// Records are never modified after the enumerator yields them.
type HandleRecord struct {
	PID        int        `json:"pid" yaml:"pid"`
	FD         int        `json:"fd" yaml:"fd"` // -1 when the handle is not a descriptor
	Kind       HandleKind `json:"kind" yaml:"kind"`
	RawName    string     `json:"raw_name" yaml:"raw_name"`
	ObjectType ObjectType `json:"object_type" yaml:"object_type"`
	Access     Access     `json:"access,omitempty" yaml:"access,omitempty"`

	// AppType is set by backends that classify the holder themselves
	// (Restart Manager reports service, console, explorer...).
	AppType string `json:"app_type,omitempty" yaml:"app_type,omitempty"`

	// Resolved is nil when the raw name could not be mapped to a path.
	Resolved *string `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Deleted  bool    `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	ID       FileID  `json:"-" yaml:"-"`
}

// Path returns the resolved path, or "" when unresolved.
func (h HandleRecord) Path() string {
	if h.Resolved == nil {
		return ""
	}
	return *h.Resolved
}
