// Package frames is the boundary to the external video decoder. It shells
// out to ffmpeg to turn the embedded video stream into still images; the
// core never interprets decoder diagnostics beyond capturing them.
package frames

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/jpegmeta"
)

const defaultBinary = "ffmpeg"

// Exporter runs the external decoder over a video stream and collects the
// emitted frame files.
type Exporter struct {
	// FFmpeg is the decoder binary. Defaults to "ffmpeg" on PATH.
	FFmpeg string
	// Format is the output image format extension. Defaults to "jpg".
	Format string
	// Tags, when non-nil, is written into each emitted JPEG frame. Nil is
	// the explicit "no metadata" signal.
	Tags *core.TagSnapshot
	// Logger receives command traces and per-frame warnings.
	Logger *zap.Logger
}

func (e *Exporter) binary() string {
	if e.FFmpeg != "" {
		return e.FFmpeg
	}
	return defaultBinary
}

func (e *Exporter) format() string {
	if e.Format != "" {
		return e.Format
	}
	return "jpg"
}

func (e *Exporter) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// buildArgs assembles the decoder invocation for streaming stdin input into
// a 1-based numbered image sequence.
func (e *Exporter) buildArgs(pattern string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "image2",
		"-start_number", "1",
		"-y",
		pattern,
	}
}

// Export streams src through the decoder, emitting frames named
// {baseName}_{n}.{format} under destDir, and returns the emitted paths in
// frame order. A non-zero decoder exit surfaces a core.DecodeError carrying
// the command line and captured stderr. Tag attachment is best-effort per
// frame: a failure is logged, not fatal.
func (e *Exporter) Export(src io.Reader, destDir, baseName string) ([]string, error) {
	// Decode into a fresh temp dir so frames left by an earlier run under
	// the same base name are never mistaken for this run's output.
	workDir, err := os.MkdirTemp(destDir, ".frames-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	pattern := filepath.Join(workDir, baseName+"_%d."+e.format())
	args := e.buildArgs(pattern)
	cmdline := e.binary() + " " + strings.Join(args, " ")

	cmd := exec.Command(e.binary(), args...)
	cmd.Stdin = src
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger().Debug("running frame decoder", zap.String("cmd", cmdline))
	if err := cmd.Run(); err != nil {
		return nil, &core.DecodeError{Cmd: cmdline, Output: stderr.String(), Err: err}
	}

	emitted, err := e.collectFrames(workDir, baseName)
	if err != nil {
		return nil, err
	}
	paths, err := moveFrames(emitted, destDir)
	if err != nil {
		return nil, err
	}
	if e.Tags != nil && e.format() == "jpg" {
		for _, p := range paths {
			if err := attachTags(p, e.Tags); err != nil {
				e.logger().Warn("frame tag write failed",
					zap.String("frame", p), zap.Error(err))
			}
		}
	}
	return paths, nil
}

// collectFrames lists the emitted sequence in frame order. The decoder
// numbers frames contiguously from 1, so collection stops at the first gap.
func (e *Exporter) collectFrames(destDir, baseName string) ([]string, error) {
	var paths []string
	for i := 1; ; i++ {
		p := filepath.Join(destDir, fmt.Sprintf("%s_%d.%s", baseName, i, e.format()))
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, &core.DecodeError{
			Cmd: e.binary(), Err: fmt.Errorf("decoder produced no frames"),
		}
	}
	return paths, nil
}

// moveFrames renames emitted frames into destDir, overwriting any stale
// file of the same name, and returns the final paths in the same order.
func moveFrames(emitted []string, destDir string) ([]string, error) {
	paths := make([]string, 0, len(emitted))
	for _, src := range emitted {
		dst := filepath.Join(destDir, filepath.Base(src))
		if err := os.Rename(src, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// attachTags writes the snapshot's XMP keys into one frame file.
func attachTags(path string, tags *core.TagSnapshot) error {
	store, err := jpegmeta.Open(path)
	if err != nil {
		return err
	}
	for _, k := range tags.Keys() {
		if !strings.HasPrefix(k, "Xmp.") {
			continue
		}
		v, _ := tags.Get(k)
		if err := store.SetString(k, v); err != nil {
			return err
		}
	}
	return store.Save(path)
}

// FirstFrame extracts frame 1 of videoPath into destImage.
func FirstFrame(ffmpeg, videoPath, destImage string, logger *zap.Logger) error {
	if ffmpeg == "" {
		ffmpeg = defaultBinary
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2",
		"-y",
		destImage,
	}
	cmdline := ffmpeg + " " + strings.Join(args, " ")

	cmd := exec.Command(ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("extracting first frame", zap.String("cmd", cmdline))
	if err := cmd.Run(); err != nil {
		return &core.DecodeError{Cmd: cmdline, Output: stderr.String(), Err: err}
	}
	return nil
}
