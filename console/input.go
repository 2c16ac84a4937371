package console

import (
	"bufio"
	"io"
	"strings"

	"github.com/mattn/go-tty"
)

// ReaderInput reads lines from a plain stream such as a pipe or a script.
type ReaderInput struct {
	sc *bufio.Scanner
}

func NewReaderInput(r io.Reader) *ReaderInput {
	return &ReaderInput{sc: bufio.NewScanner(r)}
}

func (in *ReaderInput) ReadLine() (string, error) {
	if !in.sc.Scan() {
		if err := in.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(in.sc.Text(), "\r"), nil
}

// TTYInput reads lines from the controlling terminal. The terminal is left in
// raw mode while open; ReadString echoes and handles backspace.
type TTYInput struct {
	t *tty.TTY
}

// OpenTTY opens the controlling terminal.
func OpenTTY() (*TTYInput, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}
	return &TTYInput{t: t}, nil
}

func (in *TTYInput) ReadLine() (string, error) {
	s, err := in.t.ReadString()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Output is where the console should write so prompts and echo share the
// terminal.
func (in *TTYInput) Output() io.Writer { return in.t.Output() }

func (in *TTYInput) Close() error { return in.t.Close() }
