package wire

import "errors"

var (
	// ErrMaxBufferSize is returned when a length-prefixed read exceeds
	// MaxBufferSize.
	ErrMaxBufferSize = errors.New("wire: buffer exceeds maximum size")
	// ErrBadEncodingIdentity is returned when a frame's leading identity
	// bytes do not match FrameIdentity.
	ErrBadEncodingIdentity = errors.New("wire: bad encoding identity")
	// ErrEncodingVersion is returned when a frame's version bytes do not
	// match FrameVersion.
	ErrEncodingVersion = errors.New("wire: unsupported encoding version")
	// ErrUnknownKind is returned when a tag byte does not match any known
	// value for its position in the frame.
	ErrUnknownKind = errors.New("wire: unknown message kind")
	// ErrTruncatedFrame is returned when a frame ends before a length-
	// prefixed field it promised is fully read.
	ErrTruncatedFrame = errors.New("wire: truncated frame")
	// ErrNoopTag is returned when a NOOP tag is encountered where a real
	// tag was expected; NOOP must never appear on the wire.
	ErrNoopTag = errors.New("wire: NOOP tag is not valid on the wire")
)
