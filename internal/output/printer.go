package output

import (
	"fmt"
	"io"
)

type ansiString string

const (
	colorReset   = ansiString("\033[0m")
	colorRed     = ansiString("\033[31m")
	colorGreen   = ansiString("\033[32m")
	colorYellow  = ansiString("\033[33m")
	colorMagenta = ansiString("\033[35m")
	colorDim     = ansiString("\033[2m")
)

// Printer writes terminal-safe output to an io.Writer
// sanitizing any string-like arguments (string, []byte, error, fmt.Stringer)
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) Printer {
	return Printer{w: w, color: color}
}

// c returns code when colors are on and nothing otherwise, so format
// strings can carry color verbs unconditionally.
func (p Printer) c(code ansiString) ansiString {
	if !p.color {
		return ""
	}
	return code
}

func (p Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, sanitizePrintArgs(args)...)
}

func (p Printer) Print(args ...any) {
	fmt.Fprint(p.w, sanitizePrintArgs(args)...)
}

func (p Printer) Println(args ...any) {
	fmt.Fprintln(p.w, sanitizePrintArgs(args)...)
}

func sanitizePrintArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case ansiString: // our own ansiString type is allowed to render as-is
			out[i] = string(v)
		case string:
			out[i] = SanitizeLine(v)
		case []byte:
			out[i] = SanitizeLine(string(v))
		case error:
			out[i] = SanitizeTerminal(v.Error())
		case fmt.Stringer:
			out[i] = SanitizeLine(v.String())
		default:
			out[i] = a
		}
	}
	return out
}
