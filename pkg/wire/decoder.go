package wire

import (
	"bytes"
	"io"
)

// Decoder reads stream parts from a reader whose chunk boundaries need not
// line up with part boundaries. It buffers bytes until a full line is
// available and decodes one part per call to Next.
type Decoder struct {
	r    io.Reader
	buf  []byte
	read int64

	readErr error // terminal reader state, io.EOF or a transport failure
	decErr  error // first decode failure, latched
}

// NewDecoder returns a decoder that consumes r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next part in the stream. It returns io.EOF once the
// reader is exhausted. After a decode failure the decoder is poisoned and
// every later call returns the same error; the rest of the stream cannot be
// trusted once framing is lost.
func (d *Decoder) Next() (Part, error) {
	if d.decErr != nil {
		return nil, d.decErr
	}

	for {
		if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
			line := d.buf[:i]
			d.buf = d.buf[i+1:]

			part, err := Decode(line)
			if err != nil {
				d.decErr = err
				return nil, err
			}
			return part, nil
		}

		if d.readErr != nil {
			// Anything left in the buffer has no terminator. A producer
			// always ends its last part with a newline, so the remainder is
			// an incomplete line and is dropped.
			d.buf = nil
			return nil, d.readErr
		}

		var chunk [4096]byte
		n, err := d.r.Read(chunk[:])
		if n > 0 {
			d.read += int64(n)
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			d.readErr = err
		}
	}
}

// BytesRead reports how many bytes have been consumed from the reader,
// including bytes that never formed a complete part.
func (d *Decoder) BytesRead() int64 {
	return d.read
}
