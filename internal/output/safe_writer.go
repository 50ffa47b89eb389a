package output

import "io"

// SafeTerminalWriter sanitizes all bytes written to it so the output is safe to
// display in an interactive terminal. The CLI routes its stderr through one:
// error messages quote paths and command lines we don't control.
type SafeTerminalWriter struct {
	W io.Writer
}

func (w SafeTerminalWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := io.WriteString(w.W, SanitizeTerminal(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func NewSafeTerminalWriter(w io.Writer) io.Writer {
	if _, ok := w.(SafeTerminalWriter); ok {
		return w
	}
	return SafeTerminalWriter{W: w}
}
