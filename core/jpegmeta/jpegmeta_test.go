package jpegmeta

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionphoto-go/surgery/core"
)

// minimalJPEG builds SOI + APP0(JFIF) + EOI, optionally followed by extra
// trailing bytes (an appended stream).
func minimalJPEG(t *testing.T, trailing []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	app0 := []byte("JFIF\x00\x01\x02\x00\x00\x01\x00\x01\x00\x00")
	hdr := []byte{0xFF, 0xE0, 0, 0}
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(app0)+2))
	buf.Write(hdr)
	buf.Write(app0)
	buf.Write([]byte{0xFF, 0xD9})
	buf.Write(trailing)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpen_NotAJPEG(t *testing.T) {
	path := writeFile(t, t.TempDir(), "x.jpg", []byte("plainly not a jpeg"))
	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, core.IsTagError(err))
}

func TestSetGetSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", minimalJPEG(t, nil))

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetString(core.KeyMicroVideoOffset, "1234"))
	require.NoError(t, s.SetString(core.KeyMotionPhotoOffset, "1234"))
	require.NoError(t, s.SetString(core.KeyMicroVideo, "1"))
	require.NoError(t, s.Save(path))

	reloaded, err := Open(path)
	require.NoError(t, err)
	v, ok := reloaded.GetString(core.KeyMicroVideoOffset)
	require.True(t, ok)
	assert.Equal(t, "1234", v)
	v, ok = reloaded.GetString(core.KeyMotionPhotoOffset)
	require.True(t, ok)
	assert.Equal(t, "1234", v)
	v, ok = reloaded.GetString(core.KeyMicroVideo)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestSave_PreservesTrailingBytes(t *testing.T) {
	dir := t.TempDir()
	video := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypisom-and-then-movie-data")...)
	path := writeFile(t, dir, "combined.jpg", minimalJPEG(t, video))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMotionPhoto, "1"))
	require.NoError(t, s.Save(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(got, video), "appended stream must survive a tag write")
}

func TestSave_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", minimalJPEG(t, nil))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMicroVideo, "1"))
	require.NoError(t, s.SetString(core.KeyMicroVideoOffset, "77"))
	require.NoError(t, s.Save(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Same values staged again, in the other order, after a fresh parse.
	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.SetString(core.KeyMicroVideoOffset, "77"))
	require.NoError(t, s2.SetString(core.KeyMicroVideo, "1"))
	require.NoError(t, s2.Save(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSetString_RejectsNonXMPKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.jpg", minimalJPEG(t, nil))
	s, err := Open(path)
	require.NoError(t, err)

	assert.True(t, core.IsTagError(s.SetString("Exif.Image.Make", "ACME")))
	assert.True(t, core.IsTagError(s.SetString("Xmp.Unknown.Thing", "x")))
	assert.True(t, core.IsTagError(s.SetString("garbage", "x")))
}

func TestClearAll_DropsXMPSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", minimalJPEG(t, nil))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMicroVideo, "1"))
	require.NoError(t, s.Save(path))

	s2, err := Open(path)
	require.NoError(t, err)
	s2.ClearAll()
	require.NoError(t, s2.Save(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(got), "GCamera")
	assert.Equal(t, minimalJPEG(t, nil), got)
}

func TestClear_SingleKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", minimalJPEG(t, nil))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMicroVideo, "1"))
	require.NoError(t, s.SetString(core.KeyMicroVideoTimestampUs, "900000"))
	require.NoError(t, s.Save(path))

	s2, err := Open(path)
	require.NoError(t, err)
	s2.Clear(core.KeyMicroVideo)
	require.NoError(t, s2.Save(path))

	s3, err := Open(path)
	require.NoError(t, err)
	_, ok := s3.GetString(core.KeyMicroVideo)
	assert.False(t, ok)
	v, ok := s3.GetString(core.KeyMicroVideoTimestampUs)
	require.True(t, ok)
	assert.Equal(t, "900000", v)
}

func TestSave_ToDifferentPath(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.jpg", minimalJPEG(t, []byte("tail")))
	dst := filepath.Join(dir, "dst.jpg")

	s, err := Open(src)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMotionPhoto, "1"))
	require.NoError(t, s.Save(dst))

	// Source untouched, destination tagged with the tail carried over.
	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG(t, []byte("tail")), orig)

	s2, err := Open(dst)
	require.NoError(t, err)
	v, ok := s2.GetString(core.KeyMotionPhoto)
	require.True(t, ok)
	assert.Equal(t, "1", v)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(got, []byte("tail")))
}

func TestXMPValueEscaping(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", minimalJPEG(t, nil))

	s, err := Open(path)
	require.NoError(t, err)
	const odd = `a "quoted" <value> & more`
	require.NoError(t, s.SetString("Xmp.xmp.Label", odd))
	require.NoError(t, s.Save(path))

	s2, err := Open(path)
	require.NoError(t, err)
	v, ok := s2.GetString("Xmp.xmp.Label")
	require.True(t, ok)
	assert.Equal(t, odd, v)
}

func TestOpen_FillBytesBeforeMarkers(t *testing.T) {
	// Some cameras pad the gap before a marker with extra 0xFF bytes.
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	buf.Write([]byte{0xFF, 0xFF, 0xFF}) // fill before APP0
	app0 := []byte("JFIF\x00\x01\x02\x00\x00\x01\x00\x01\x00\x00")
	hdr := []byte{0xE0, 0, 0}
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(app0)+2))
	buf.Write(hdr)
	buf.Write(app0)
	buf.Write([]byte{0xFF, 0xFF, 0xD9}) // fill before EOI
	buf.Write([]byte("trailing-stream"))

	dir := t.TempDir()
	path := writeFile(t, dir, "padded.jpg", buf.Bytes())

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetString(core.KeyMotionPhoto, "1"))
	require.NoError(t, s.Save(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(got, []byte("trailing-stream")))

	s2, err := Open(path)
	require.NoError(t, err)
	v, ok := s2.GetString(core.KeyMotionPhoto)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}
