package core

import (
	"errors"
	"fmt"
)

// ErrShortRead reports that a bounded copy ran out of input. It is always
// wrapped in a StreamError.
var ErrShortRead = errors.New("short read")

// StreamError is a local I/O failure during a chunked copy. It is fatal to
// the enclosing operation and never retried.
type StreamError struct {
	Op  string // "read", "write", "seek"
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// IsStreamError reports whether err is (or wraps) a StreamError.
func IsStreamError(err error) bool {
	var e *StreamError
	return errors.As(err, &e)
}

// OffsetNotFoundError reports that neither the offset tags nor a physical
// scan could locate a video start in the file.
type OffsetNotFoundError struct {
	Path string
}

func (e *OffsetNotFoundError) Error() string {
	return fmt.Sprintf("no video offset found in %q", e.Path)
}

// IsOffsetNotFound reports whether err is (or wraps) an OffsetNotFoundError.
func IsOffsetNotFound(err error) bool {
	var e *OffsetNotFoundError
	return errors.As(err, &e)
}

// NotLiveLikeError reports that a file could not be opened as a live-photo
// container. Batch callers match on it to skip plain images without
// aborting.
type NotLiveLikeError struct {
	Path string
	Err  error
}

func (e *NotLiveLikeError) Error() string {
	return fmt.Sprintf("%q is not a live-photo-like file: %v", e.Path, e.Err)
}

func (e *NotLiveLikeError) Unwrap() error { return e.Err }

// IsNotLiveLike reports whether err is (or wraps) a NotLiveLikeError.
func IsNotLiveLike(err error) bool {
	var e *NotLiveLikeError
	return errors.As(err, &e)
}

// TagError is a metadata read/write failure. Non-fatal for image export
// (pixel data still lands), fatal for repair (a half-written tag set is
// worse than none).
type TagError struct {
	Path string
	Op   string // "open", "set", "save"
	Err  error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag %s on %q: %v", e.Op, e.Path, e.Err)
}

func (e *TagError) Unwrap() error { return e.Err }

// IsTagError reports whether err is (or wraps) a TagError.
func IsTagError(err error) bool {
	var e *TagError
	return errors.As(err, &e)
}

// ExportError is a failure while producing a companion image or video file.
type ExportError struct {
	Dest string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %q: %v", e.Dest, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// DecodeError reports that the external frame decoder exited non-zero. It
// carries the invoked command and the captured diagnostic output verbatim.
type DecodeError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("decoder failed (%s): %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("decoder failed (%s): %v\n%s", e.Cmd, e.Err, e.Output)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}
