package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionphoto-go/surgery/core"
)

func TestDefaults(t *testing.T) {
	e := &Exporter{}
	assert.Equal(t, "ffmpeg", e.binary())
	assert.Equal(t, "jpg", e.format())
	assert.NotNil(t, e.logger())

	e = &Exporter{FFmpeg: "/opt/ffmpeg", Format: "png"}
	assert.Equal(t, "/opt/ffmpeg", e.binary())
	assert.Equal(t, "png", e.format())
}

func TestBuildArgs(t *testing.T) {
	e := &Exporter{}
	args := e.buildArgs("/tmp/out_%d.jpg")

	assert.Equal(t, "/tmp/out_%d.jpg", args[len(args)-1])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i pipe:0")
	assert.Contains(t, joined, "-f image2")
	assert.Contains(t, joined, "-start_number 1")
	assert.Contains(t, joined, "-loglevel error")
}

func TestExport_MissingBinary(t *testing.T) {
	e := &Exporter{FFmpeg: filepath.Join(t.TempDir(), "no-such-ffmpeg")}
	_, err := e.Export(strings.NewReader("x"), t.TempDir(), "frame")
	require.Error(t, err)
	assert.True(t, core.IsDecodeError(err))

	var derr *core.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Cmd, "no-such-ffmpeg")
}

func TestCollectFrames_StopsAtGap(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"f_1.jpg", "f_2.jpg", "f_3.jpg", "f_5.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}

	e := &Exporter{}
	paths, err := e.collectFrames(dir, "f")
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "f_1.jpg"), paths[0])
	assert.Equal(t, filepath.Join(dir, "f_3.jpg"), paths[2])
}

func TestCollectFrames_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 12; i++ {
		name := filepath.Join(dir, fmt.Sprintf("f_%d.jpg", i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0644))
	}

	e := &Exporter{}
	paths, err := e.collectFrames(dir, "f")
	require.NoError(t, err)
	require.Len(t, paths, 12)
	// frame 10 sorts before frame 2 lexically; collection must not.
	assert.Equal(t, filepath.Join(dir, "f_2.jpg"), paths[1])
	assert.Equal(t, filepath.Join(dir, "f_10.jpg"), paths[9])
}

func TestCollectFrames_Empty(t *testing.T) {
	e := &Exporter{}
	_, err := e.collectFrames(t.TempDir(), "f")
	require.Error(t, err)
	assert.True(t, core.IsDecodeError(err))
}

func TestMoveFrames_IgnoresStaleOutput(t *testing.T) {
	destDir := t.TempDir()
	// Leftovers from an earlier, longer run under the same base name.
	for i := 1; i <= 5; i++ {
		name := filepath.Join(destDir, fmt.Sprintf("f_%d.jpg", i))
		require.NoError(t, os.WriteFile(name, []byte("stale"), 0644))
	}

	workDir, err := os.MkdirTemp(destDir, ".frames-")
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		name := filepath.Join(workDir, fmt.Sprintf("f_%d.jpg", i))
		require.NoError(t, os.WriteFile(name, []byte("fresh"), 0644))
	}

	e := &Exporter{}
	emitted, err := e.collectFrames(workDir, "f")
	require.NoError(t, err)
	require.Len(t, emitted, 2, "only this run's frames are collected")

	paths, err := moveFrames(emitted, destDir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got), "a same-numbered stale file is overwritten")

	stale, err := os.ReadFile(filepath.Join(destDir, "f_3.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(stale), "higher-numbered leftovers are not claimed")
}
