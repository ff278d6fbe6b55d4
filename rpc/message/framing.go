package message

import (
	"bufio"
	"fmt"
	"io"
)

// MaxLineSize bounds one encoded message. Descriptors of very large files
// carry one hash per block, so the bound is generous.
const MaxLineSize = 64 * 1024 * 1024

// Reader reads newline-delimited messages.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)

	return &Reader{scanner: scanner}
}

// Read returns the next message. A line that does not decode yields a
// *SerializationError and the reader stays usable; io.EOF marks a clean end
// of stream and any other error is a transport failure.
func (r *Reader) Read() (Message, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}

		return nil, io.EOF
	}

	return Decode(r.scanner.Bytes())
}

// Write encodes m and writes it followed by a newline in a single call.
func Write(w io.Writer, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}

	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing %s: %w", m.Kind(), err)
	}

	return nil
}
