//go:build linux

package proc

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

// Procfs reads handle tables from a proc filesystem mounted at Root.
type Procfs struct {
	Root string
	// Self is left out of enumerations; 0 disables that
	Self int
}

func NewProcfs() *Procfs {
	return &Procfs{Root: "/proc", Self: os.Getpid()}
}

func NewBackend() Backend {
	p := NewProcfs()
	return Backend{Enumerator: p, Inspector: p, Terminator: &Signaller{state: p.state}}
}

func (p *Procfs) Enumerate(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error] {
	return func(yield func(model.HandleRecord, error) bool) {
		pids, err := p.listPIDs()
		if err != nil {
			yield(model.HandleRecord{}, fmt.Errorf("%w: %v", ErrEnumerationFailed, err))
			return
		}
		r := scope.Resolver
		if r == nil {
			r = pathres.NewNativeResolver(pathres.NewMatcher(false))
		}
		for _, pid := range pids {
			if ctx.Err() != nil {
				return
			}
			if pid == p.Self {
				continue
			}
			if !p.process(pid, r, scope.IncludeMmap, yield) {
				return
			}
		}
	}
}

func (p *Procfs) pidDir(pid int) string {
	return filepath.Join(p.Root, strconv.Itoa(pid))
}

var specialLinks = []struct {
	name string
	kind model.HandleKind
}{
	{"cwd", model.KindCwd},
	{"root", model.KindRoot},
	{"exe", model.KindExe},
}

func (p *Procfs) process(pid int, r *pathres.Resolver, mmap bool, yield func(model.HandleRecord, error) bool) bool {
	base := p.pidDir(pid)
	fdDir := filepath.Join(base, "fd")

	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return yield(model.HandleRecord{}, classify(pid, err))
	}

	for _, l := range specialLinks {
		link := filepath.Join(base, l.name)
		raw, err := os.Readlink(link)
		if err != nil {
			continue
		}
		if !yield(p.record(pid, -1, l.kind, raw, link, r), nil) {
			return false
		}
	}

	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		link := filepath.Join(fdDir, e.Name())
		raw, err := os.Readlink(link)
		if err != nil {
			// closed since ReadDir
			continue
		}
		rec := p.record(pid, fd, model.KindFD, raw, link, r)
		rec.Access = readAccess(filepath.Join(base, "fdinfo", e.Name()))
		if !yield(rec, nil) {
			return false
		}
	}

	if mmap {
		for _, rec := range p.mappedFiles(pid, r) {
			if !yield(rec, nil) {
				return false
			}
		}
	}
	return true
}

func (p *Procfs) record(pid, fd int, kind model.HandleKind, raw, link string, r *pathres.Resolver) model.HandleRecord {
	rec := model.HandleRecord{PID: pid, FD: fd, Kind: kind, RawName: raw}
	rec.Resolved, rec.Deleted = resolved(r, raw)

	var st unix.Stat_t
	if err := unix.Stat(link, &st); err == nil {
		rec.ObjectType = objectType(uint32(st.Mode))
		rec.ID = model.FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
	} else {
		rec.ObjectType = objectTypeFromName(raw)
	}
	return rec
}

func objectType(mode uint32) model.ObjectType {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return model.ObjectFile
	case unix.S_IFDIR:
		return model.ObjectDirectory
	case unix.S_IFCHR, unix.S_IFBLK:
		return model.ObjectDevice
	case unix.S_IFSOCK:
		return model.ObjectSocket
	case unix.S_IFIFO:
		return model.ObjectPipe
	}
	return model.ObjectOther
}

func objectTypeFromName(raw string) model.ObjectType {
	switch {
	case strings.HasPrefix(raw, "socket:"):
		return model.ObjectSocket
	case strings.HasPrefix(raw, "pipe:"):
		return model.ObjectPipe
	case strings.HasPrefix(raw, "/dev/"):
		return model.ObjectDevice
	case strings.HasPrefix(raw, "/"):
		return model.ObjectFile
	}
	return model.ObjectOther
}

// readAccess parses the octal "flags:" line of /proc/<pid>/fdinfo/<fd>.
func readAccess(path string) model.Access {
	f, err := os.Open(path)
	if err != nil {
		return model.AccessUnknown
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags:") {
			continue
		}
		flags, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "flags:")), 8, 64)
		if err != nil {
			return model.AccessUnknown
		}
		switch flags & unix.O_ACCMODE {
		case unix.O_RDONLY:
			return model.AccessRead
		case unix.O_WRONLY:
			return model.AccessWrite
		case unix.O_RDWR:
			return model.AccessReadWrite
		}
	}
	return model.AccessUnknown
}

// mappedFiles returns one record per file-backed mapping in /proc/<pid>/maps.
func (p *Procfs) mappedFiles(pid int, r *pathres.Resolver) []model.HandleRecord {
	f, err := os.Open(filepath.Join(p.pidDir(pid), "maps"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []model.HandleRecord
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// 7f1c2a000000-7f1c2a021000 r--p 00000000 08:01 1319 /usr/lib/libc.so.6
		fields := strings.SplitN(scanner.Text(), " ", 6)
		if len(fields) < 6 {
			continue
		}
		ino, _ := strconv.ParseUint(fields[4], 10, 64)
		name := strings.TrimSpace(fields[5])
		if ino == 0 || name == "" || seen[name] {
			continue
		}
		seen[name] = true

		rec := model.HandleRecord{PID: pid, FD: -1, Kind: model.KindMmap, RawName: name, ObjectType: model.ObjectFile}
		rec.Resolved, rec.Deleted = resolved(r, name)
		if major, minor, ok := parseDevice(fields[3]); ok {
			rec.ID = model.FileID{Dev: unix.Mkdev(major, minor), Ino: ino}
		}
		if strings.Contains(fields[1], "w") {
			rec.Access = model.AccessReadWrite
		} else {
			rec.Access = model.AccessRead
		}
		out = append(out, rec)
	}
	return out
}

func parseDevice(s string) (uint32, uint32, bool) {
	maj, min, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, false
	}
	major, err1 := strconv.ParseUint(maj, 16, 32)
	minor, err2 := strconv.ParseUint(min, 16, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(major), uint32(minor), true
}
