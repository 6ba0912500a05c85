package alert

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// maxLineBytes bounds a single alert line. Longer lines are skipped as
// malformed.
const maxLineBytes = 1 << 20

var errLineTooLong = fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, maxLineBytes)

// Reader yields alerts one at a time from newline-delimited JSON or from a
// JSON array. Next returns io.EOF when the input is exhausted.
type Reader struct {
	// next returns the next raw record, io.EOF at the end, errLineTooLong
	// for a skipped record, or a terminal read error.
	next func() ([]byte, error)
	pos  int
	now  func() time.Time
}

// NewReader returns a Reader over newline-delimited JSON alerts. Blank lines
// are skipped.
func NewReader(r io.Reader) *Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	return &Reader{
		next: func() ([]byte, error) {
			var err error
			buf, err = readLine(br, buf[:0])
			return buf, err
		},
		now: time.Now,
	}
}

// readLine appends the next line of br to buf without its line ending. A line
// over maxLineBytes is consumed through its newline and reported as
// errLineTooLong. A final line without a newline is returned as is.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
		case errors.Is(err, io.EOF):
			if !tooLong && len(buf) == 0 {
				return nil, io.EOF
			}
		default:
			return nil, err
		}

		if tooLong {
			return nil, errLineTooLong
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		buf = bytes.TrimSuffix(buf, []byte("\r"))
		return buf, nil
	}
}

// NewBatchReader returns a Reader for a request body holding either a JSON
// array of alert objects or newline-delimited alerts.
func NewBatchReader(body []byte) (*Reader, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return NewReader(bytes.NewReader(body)), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode alert array: %w", err)
	}

	i := 0
	return &Reader{
		next: func() ([]byte, error) {
			if i >= len(items) {
				return nil, io.EOF
			}
			item := items[i]
			i++
			return item, nil
		},
		now: time.Now,
	}, nil
}

// Next returns the next alert. A record that cannot be decoded yields an
// error wrapping ErrMalformed and the reader stays usable.
func (r *Reader) Next() (*Alert, error) {
	for {
		raw, err := r.next()
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, errLineTooLong):
			r.pos++
			return nil, fmt.Errorf("record %d: %w", r.pos, err)
		case err != nil:
			return nil, fmt.Errorf("read alerts: %w", err)
		}
		r.pos++

		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		al, err := Decode(raw, r.now())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.pos, err)
		}
		return al, nil
	}
}
