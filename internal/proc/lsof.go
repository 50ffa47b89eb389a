package proc

import (
	"bufio"
	"context"
	"iter"
	"strconv"
	"strings"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

// lsofArgs asks for machine-readable field output: p(id), c(ommand),
// f(d), a(ccess), t(ype), n(ame).
var lsofArgs = []string{"-n", "-P", "-w", "-F", "pcfatn"}

// parseLsof turns lsof -F output into handle records. Records are yielded as
// each name field completes a file set; ctx is checked whenever a new process
// set starts.
func parseLsof(ctx context.Context, out string, r *pathres.Resolver) iter.Seq2[model.HandleRecord, error] {
	return func(yield func(model.HandleRecord, error) bool) {
		var (
			pid    int
			fd     = -1
			kind   model.HandleKind
			access model.Access
			typ    string
		)
		scanner := bufio.NewScanner(strings.NewReader(out))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			val := line[1:]
			switch line[0] {
			case 'p':
				if ctx.Err() != nil {
					return
				}
				pid, _ = strconv.Atoi(val)
			case 'f':
				fd, kind = lsofDescriptor(val)
				access, typ = model.AccessUnknown, ""
			case 'a':
				access = lsofAccess(val)
			case 't':
				typ = val
			case 'n':
				if pid <= 0 {
					continue
				}
				rec := model.HandleRecord{
					PID:        pid,
					FD:         fd,
					Kind:       kind,
					RawName:    val,
					ObjectType: lsofType(typ),
					Access:     access,
				}
				if rec.ObjectType != model.ObjectSocket && rec.ObjectType != model.ObjectPipe {
					rec.Resolved, rec.Deleted = resolved(r, val)
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func lsofDescriptor(f string) (int, model.HandleKind) {
	switch f {
	case "cwd":
		return -1, model.KindCwd
	case "rtd":
		return -1, model.KindRoot
	case "txt":
		return -1, model.KindExe
	case "mem", "mmap":
		return -1, model.KindMmap
	}
	n := 0
	for n < len(f) && f[n] >= '0' && f[n] <= '9' {
		n++
	}
	if n == 0 {
		return -1, model.HandleKind(f)
	}
	fd, _ := strconv.Atoi(f[:n])
	return fd, model.KindFD
}

func lsofAccess(a string) model.Access {
	switch a {
	case "r":
		return model.AccessRead
	case "w":
		return model.AccessWrite
	case "u":
		return model.AccessReadWrite
	}
	return model.AccessUnknown
}

func lsofType(t string) model.ObjectType {
	switch t {
	case "REG":
		return model.ObjectFile
	case "DIR":
		return model.ObjectDirectory
	case "CHR", "BLK":
		return model.ObjectDevice
	case "FIFO", "PIPE":
		return model.ObjectPipe
	case "unix", "IPv4", "IPv6", "sock", "systm":
		return model.ObjectSocket
	case "":
		return model.ObjectUnknown
	}
	return model.ObjectOther
}
