package fd

import (
	"bufio"
	"fmt"
	"io"

	"efskernel/vm"
)

// Stdin reads single bytes from the host console, matching fs::stdio::Stdin.
type Stdin struct {
	r *bufio.Reader
}

// NewStdin wraps an input source (os.Stdin in production, anything in tests).
func NewStdin(r io.Reader) *Stdin { return &Stdin{r: bufio.NewReader(r)} }

func (s *Stdin) Readable() bool { return true }
func (s *Stdin) Writable() bool { return false }

// Read fills buf one byte at a time, matching Stdin::read's
// assert_eq!(user_buf.len(), 1) contract: callers issuing a multi-byte
// read against stdin get back only the first byte, same as the original.
func (s *Stdin) Read(buf *vm.UserBuffer) int {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0
	}
	return buf.Write([]byte{b})
}

func (s *Stdin) Write(buf *vm.UserBuffer) int {
	panic("fd: cannot write to stdin")
}

// Stdout writes to the host console, matching fs::stdio::Stdout.
type Stdout struct {
	w io.Writer
}

// NewStdout wraps an output sink (os.Stdout in production).
func NewStdout(w io.Writer) *Stdout { return &Stdout{w: w} }

func (s *Stdout) Readable() bool { return false }
func (s *Stdout) Writable() bool { return true }

func (s *Stdout) Read(buf *vm.UserBuffer) int {
	panic("fd: cannot read from stdout")
}

func (s *Stdout) Write(buf *vm.UserBuffer) int {
	data := make([]byte, buf.Len())
	n := buf.Read(data)
	fmt.Fprint(s.w, string(data[:n]))
	return n
}
