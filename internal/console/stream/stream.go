// Package stream turns bounded reads from a serial handle into fragments
// of raw bytes plus their best-effort UTF-8 text.
package stream

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	defaultChunkSize   = 4096
	defaultMaxFragment = 64 * 1024
)

// Fragment is the result of one Poll. Raw holds the bytes exactly as read;
// Text is the decoded form used for matching. Text drops malformed UTF-8
// and may lag Raw by up to three bytes when a multi-byte character is split
// across reads.
type Fragment struct {
	Raw  []byte
	Text string
}

// Empty reports whether no bytes were read.
func (f Fragment) Empty() bool { return len(f.Raw) == 0 }

// Option configures a Reader.
type Option func(*Reader)

// WithChunkSize sets the size of each underlying Read call.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunk = n
		}
	}
}

// WithMaxFragment caps how many bytes a single Poll may gather.
func WithMaxFragment(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.max = n
		}
	}
}

// Reader polls an io.Reader whose Read returns (0, nil) when its read
// timeout expires, as serial ports configured with a read timeout do.
// It is not safe for concurrent use.
type Reader struct {
	src   io.Reader
	chunk int
	max   int
	buf   []byte
	dec   *decoder
	err   error
}

// NewReader wraps src.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		src:   src,
		chunk: defaultChunkSize,
		max:   defaultMaxFragment,
		dec:   newDecoder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.max < r.chunk {
		r.max = r.chunk
	}
	r.buf = make([]byte, r.chunk)
	return r
}

// Poll performs one bounded read. When the read fills the buffer it keeps
// reading until a short read or the fragment cap, so a burst of output is
// delivered as one fragment. An empty fragment with a nil error means the
// device was silent for one read timeout.
//
// If a read fails after some bytes were gathered, those bytes are returned
// and the error is reported by the next Poll.
func (r *Reader) Poll() (Fragment, error) {
	if r.err != nil {
		err := r.err
		r.err = nil
		return Fragment{}, err
	}

	var raw []byte
	for len(raw) < r.max {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			raw = append(raw, r.buf[:n]...)
		}
		if err != nil {
			if len(raw) == 0 {
				return Fragment{}, err
			}
			r.err = err
			break
		}
		if n < len(r.buf) {
			break
		}
	}
	if len(raw) == 0 {
		return Fragment{}, nil
	}
	return Fragment{Raw: raw, Text: r.dec.decode(raw)}, nil
}

// decoder drops malformed UTF-8 and carries incomplete trailing sequences
// over to the next call.
type decoder struct {
	t       transform.Transformer
	pending []byte
}

func newDecoder() *decoder {
	return &decoder{
		t: runes.Remove(runes.Predicate(func(r rune) bool {
			return r == utf8.RuneError
		})),
	}
}

func (d *decoder) decode(p []byte) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	// Removal never grows the output.
	dst := make([]byte, len(src))
	nDst, nSrc, err := d.t.Transform(dst, src, false)
	if err == transform.ErrShortSrc {
		d.pending = append([]byte(nil), src[nSrc:]...)
	}
	return string(dst[:nDst])
}
