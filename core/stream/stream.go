// Package stream provides the chunked copy primitives and the streaming
// pattern scan shared by every export path. All operations are synchronous
// and bounded-memory: container files may be several gigabytes and are
// never loaded whole.
package stream

import (
	"errors"
	"io"

	"github.com/motionphoto-go/surgery/core"
)

// ChunkSize is the fixed buffer size for all copy and scan loops.
const ChunkSize = 16 * 1024

// ErrPatternNotFound reports that FindPattern reached EOF without a match.
var ErrPatternNotFound = errors.New("pattern not found")

// CopyAll copies from src's current read position to EOF. Partial writes
// before a failure are not rolled back; the destination is left truncated.
func CopyAll(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, &core.StreamError{Op: "write", Err: werr}
			}
			if wn != n {
				return written, &core.StreamError{Op: "write", Err: io.ErrShortWrite}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &core.StreamError{Op: "read", Err: rerr}
		}
	}
}

// CopyN copies exactly n bytes from src to dst. It never reads past the
// n-byte boundary, so a reused stream's cursor lands exactly there. Fails
// wrapping core.ErrShortRead if src ends early.
func CopyN(dst io.Writer, src io.Reader, n int64) error {
	buf := make([]byte, ChunkSize)
	remaining := n
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		rn, rerr := src.Read(buf[:want])
		if rn > 0 {
			wn, werr := dst.Write(buf[:rn])
			if werr != nil {
				return &core.StreamError{Op: "write", Err: werr}
			}
			if wn != rn {
				return &core.StreamError{Op: "write", Err: io.ErrShortWrite}
			}
			remaining -= int64(rn)
		}
		if rerr == io.EOF {
			if remaining > 0 {
				return &core.StreamError{Op: "read", Err: core.ErrShortRead}
			}
			return nil
		}
		if rerr != nil {
			return &core.StreamError{Op: "read", Err: rerr}
		}
	}
	return nil
}

// CopyFromOffset seeks src to the absolute offset and copies to EOF.
func CopyFromOffset(dst io.Writer, src io.ReadSeeker, offset int64) (int64, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, &core.StreamError{Op: "seek", Err: err}
	}
	return CopyAll(dst, src)
}

// FindPattern scans r for the first occurrence of pattern and returns the
// global byte position of the match start. It is a single forward pass: a
// KMP automaton carries partial-match state across chunk boundaries, so a
// pattern straddling two reads is still found, with O(1) extra memory.
func FindPattern(r io.Reader, pattern []byte) (int64, error) {
	if len(pattern) == 0 {
		return 0, nil
	}
	failure := kmpFailure(pattern)

	buf := make([]byte, ChunkSize)
	var base int64 // global position of buf[0]
	j := 0         // matched prefix length
	for {
		n, rerr := r.Read(buf)
		for i := 0; i < n; i++ {
			for j > 0 && buf[i] != pattern[j] {
				j = failure[j-1]
			}
			if buf[i] == pattern[j] {
				j++
			}
			if j == len(pattern) {
				return base + int64(i) - int64(len(pattern)) + 1, nil
			}
		}
		base += int64(n)
		if rerr == io.EOF {
			return -1, ErrPatternNotFound
		}
		if rerr != nil {
			return -1, &core.StreamError{Op: "read", Err: rerr}
		}
	}
}

// kmpFailure builds the KMP failure function: failure[i] is the length of
// the longest proper prefix of pattern[:i+1] that is also a suffix.
func kmpFailure(pattern []byte) []int {
	failure := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = failure[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		failure[i] = k
	}
	return failure
}
