package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionphoto-go/surgery/core"
)

// chunkedReader yields at most chunk bytes per Read call, to force pattern
// matches across read boundaries.
type chunkedReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func TestCopyAll(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 5000) // larger than one chunk
	var dst bytes.Buffer

	n, err := CopyAll(&dst, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, dst.Bytes())
}

func TestCopyN_ExactBoundary(t *testing.T) {
	src := strings.NewReader("0123456789")
	var dst bytes.Buffer

	require.NoError(t, CopyN(&dst, src, 4))
	assert.Equal(t, "0123", dst.String())

	// The cursor must sit exactly at the boundary for the next reader.
	rest, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
}

func TestCopyN_ShortRead(t *testing.T) {
	var dst bytes.Buffer
	err := CopyN(&dst, strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.True(t, core.IsStreamError(err))
	assert.True(t, errors.Is(err, core.ErrShortRead))
}

func TestCopyFromOffset(t *testing.T) {
	src := bytes.NewReader([]byte("HEADERvideobytes"))
	var dst bytes.Buffer

	n, err := CopyFromOffset(&dst, src, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "videobytes", dst.String())
}

func TestFindPattern_Simple(t *testing.T) {
	data := append(bytes.Repeat([]byte{0x00}, 1000), []byte("\x00\x00\x00\x18ftypisom")...)
	pos, err := FindPattern(bytes.NewReader(data), []byte("ftyp"))
	require.NoError(t, err)
	assert.Equal(t, int64(1004), pos)
}

func TestFindPattern_EveryChunkBoundarySplit(t *testing.T) {
	pattern := []byte("ftyp")
	// Place the pattern so it straddles the reader boundary at every split
	// point from 0 to len(pattern)-1 bytes before the cut.
	for lead := 60; lead < 60+len(pattern); lead++ {
		data := append(bytes.Repeat([]byte{'x'}, lead), pattern...)
		data = append(data, []byte("trailer")...)

		r := &chunkedReader{data: data, chunk: 64}
		pos, err := FindPattern(r, pattern)
		require.NoError(t, err, "lead %d", lead)
		assert.Equal(t, int64(lead), pos, "lead %d", lead)
	}
}

func TestFindPattern_SelfOverlapAcrossBoundary(t *testing.T) {
	// Prefix that partially matches then restarts: KMP must carry state.
	pattern := []byte("ftyp")
	data := append(bytes.Repeat([]byte{'f'}, 63), []byte("ftyp")...)
	r := &chunkedReader{data: data, chunk: 64}
	pos, err := FindPattern(r, pattern)
	require.NoError(t, err)
	assert.Equal(t, int64(63), pos)
}

func TestFindPattern_LeftmostMatch(t *testing.T) {
	data := []byte("....ftyp....ftyp....")
	pos, err := FindPattern(bytes.NewReader(data), []byte("ftyp"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)
}

func TestFindPattern_NotFound(t *testing.T) {
	data := bytes.Repeat([]byte("fty_"), 10000)
	_, err := FindPattern(bytes.NewReader(data), []byte("ftyp"))
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestFindPattern_GlobalPositionPastFirstChunk(t *testing.T) {
	lead := ChunkSize*3 + 123
	data := append(bytes.Repeat([]byte{0xAB}, lead), []byte("ftyp")...)
	pos, err := FindPattern(bytes.NewReader(data), []byte("ftyp"))
	require.NoError(t, err)
	assert.Equal(t, int64(lead), pos)
}
