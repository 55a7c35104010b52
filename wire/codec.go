package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Writer accumulates a frame body: big-endian integers and length-prefixed
// byte strings, bounded by MaxBufferSize on every write.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty frame writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Tag writes a single tag byte. Writing NOOP is a programming error.
func (w *Writer) Tag(tag Tag) error {
	if tag == NOOP {
		return ErrNoopTag
	}
	w.buf.WriteByte(byte(tag))
	return nil
}

// Byte writes a single raw byte, used for boolean flags where 0 is a
// legitimate value (unlike Tag, where 0 is the reserved NOOP sentinel).
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// Bool writes a single byte: 1 for true, 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

// Uint16 writes a big-endian uint16.
func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// Uint32 writes a big-endian uint32.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// Uint64 writes a big-endian uint64.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// Bytes writes a 4-byte big-endian length prefix followed by data.
func (w *Writer) Bytes(data []byte) error {
	if len(data) > MaxBufferSize {
		return ErrMaxBufferSize
	}
	w.Uint32(uint32(len(data)))
	w.buf.Write(data)
	return nil
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) error {
	return w.Bytes([]byte(s))
}

// Body returns the accumulated, uncompressed body.
func (w *Writer) Body() []byte {
	return w.buf.Bytes()
}

// EncodeFrame prepends the identity/version header to body and compresses
// the whole thing with deflate, producing the bytes a transport sends.
func EncodeFrame(body []byte) ([]byte, error) {
	var raw bytes.Buffer
	raw.Write(FrameIdentity[:])
	raw.Write(FrameVersion[:])
	raw.Write(body)

	var out bytes.Buffer
	fw, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("wire: failed to create deflate writer: %w", err)
	}
	if _, err := fw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("wire: failed to compress frame: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("wire: failed to flush compressed frame: %w", err)
	}
	return out.Bytes(), nil
}

// Reader consumes a frame body produced by Writer, enforcing MaxBufferSize
// on every length-prefixed read.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader wraps a raw (already-inflated) frame body for sequential
// decoding.
func NewReader(body []byte) *Reader {
	return &Reader{r: bytes.NewReader(body)}
}

// Err returns the first error encountered by any Reader method, or nil.
func (r *Reader) Err() error {
	return r.err
}

// Tag reads a single tag byte. A NOOP byte is reported as ErrNoopTag.
func (r *Reader) Tag() Tag {
	if r.err != nil {
		return NOOP
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return NOOP
	}
	tag := Tag(b)
	if tag == NOOP {
		r.err = ErrNoopTag
	}
	return tag
}

// Byte reads a single raw byte.
func (r *Reader) Byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return 0
	}
	return b
}

// Bool reads a single byte as a boolean.
func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() uint16 {
	if r.err != nil {
		return 0
	}
	var b [2]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() uint64 {
	if r.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

// Bytes reads a 4-byte length prefix followed by that many bytes, rejecting
// lengths over MaxBufferSize.
func (r *Reader) Bytes() []byte {
	if r.err != nil {
		return nil
	}
	n := r.Uint32()
	if r.err != nil {
		return nil
	}
	if n > MaxBufferSize {
		r.err = ErrMaxBufferSize
		return nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		r.err = fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		return nil
	}
	return data
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// DecodeFrame inflates a compressed frame, validates its identity/version
// header, and returns the remaining body for further decoding.
func DecodeFrame(compressed []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	raw, err := io.ReadAll(io.LimitReader(fr, MaxBufferSize+16))
	if err != nil {
		return nil, fmt.Errorf("wire: failed to decompress frame: %w", err)
	}
	if len(raw) > MaxBufferSize {
		return nil, ErrMaxBufferSize
	}
	if len(raw) < 6 {
		return nil, ErrTruncatedFrame
	}

	var identity [4]byte
	copy(identity[:], raw[0:4])
	if identity != FrameIdentity {
		return nil, ErrBadEncodingIdentity
	}

	var version [2]byte
	copy(version[:], raw[4:6])
	if version != FrameVersion {
		return nil, ErrEncodingVersion
	}

	return raw[6:], nil
}
