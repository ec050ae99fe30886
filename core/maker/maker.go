// Package maker assembles a live-photo container from a separate image and
// video: the inverse of splitting one apart. The video is appended after
// the image bytes and the reverse-offset tags are written in both dialects,
// so maker output is immediately valid input to the container model.
package maker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/frames"
	"github.com/motionphoto-go/surgery/core/livephoto"
	"github.com/motionphoto-go/surgery/core/stream"
)

// Maker is a transient builder for one container file.
type Maker struct {
	// ImagePath is the main image. Empty means "use the first video frame",
	// which is extracted through the external decoder.
	ImagePath string
	// VideoPath is the video to embed. Required.
	VideoPath string
	// DestPath is the output container. Computed from the naming convention
	// when empty.
	DestPath string
	// FFmpeg overrides the decoder binary used for first-frame extraction.
	FFmpeg string
	// Logger receives decoder diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// New validates the inputs and fills in the default destination path.
func New(imagePath, videoPath, destPath string) (*Maker, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("maker: video path is required")
	}
	if id, err := core.DetectFormat(videoPath); err != nil {
		return nil, err
	} else if id != core.FmtMP4 {
		return nil, fmt.Errorf("maker: %q is not an ISOBMFF video", videoPath)
	}
	if imagePath != "" {
		if id, err := core.DetectFormat(imagePath); err != nil {
			return nil, err
		} else if id != core.FmtJPEG {
			return nil, fmt.Errorf("maker: %q is not a JPEG image", imagePath)
		}
	}
	if destPath == "" {
		destPath = defaultDestPath(videoPath)
	}
	return &Maker{
		ImagePath: imagePath,
		VideoPath: videoPath,
		DestPath:  destPath,
	}, nil
}

// defaultDestPath maps VID_x.mp4 to MVIMG_x.jpg next to the video;
// anything else gets an MVIMG_ prefix on the video's base name.
func defaultDestPath(videoPath string) string {
	dir := filepath.Dir(videoPath)
	name := filepath.Base(videoPath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if rest, ok := strings.CutPrefix(base, "VID"); ok {
		return filepath.Join(dir, "MVIMG"+rest+".jpg")
	}
	return filepath.Join(dir, "MVIMG_"+base+".jpg")
}

// Export writes the combined container: image bytes first, video bytes
// appended, then the dual-dialect offset tags with reverse offset equal to
// the video size (the video is the final segment, so the two are equal by
// construction). Re-running overwrites the destination. A half-written
// destination is not cleaned up on failure.
func (m *Maker) Export() error {
	imagePath := m.ImagePath
	if imagePath == "" {
		tmp, err := m.extractFirstFrame()
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		imagePath = tmp
	}

	videoSize, err := m.assemble(imagePath)
	if err != nil {
		return err
	}

	if _, err := livephoto.WriteOffsetTags(m.DestPath, videoSize); err != nil {
		return err
	}
	return nil
}

// assemble concatenates image + video into DestPath and returns the video
// size in bytes.
func (m *Maker) assemble(imagePath string) (int64, error) {
	out, err := os.Create(m.DestPath)
	if err != nil {
		return 0, err
	}

	img, err := os.Open(imagePath)
	if err != nil {
		out.Close()
		return 0, err
	}
	_, cerr := stream.CopyAll(out, img)
	img.Close()
	if cerr != nil {
		out.Close()
		return 0, cerr
	}

	vid, err := os.Open(m.VideoPath)
	if err != nil {
		out.Close()
		return 0, err
	}
	videoSize, cerr := stream.CopyAll(out, vid)
	vid.Close()
	if cerr != nil {
		out.Close()
		return 0, cerr
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	return videoSize, nil
}

// extractFirstFrame pulls frame 1 of the video into a temp JPEG.
func (m *Maker) extractFirstFrame() (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(m.DestPath), "frame*.jpg")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	tmp.Close()

	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := frames.FirstFrame(m.FFmpeg, m.VideoPath, name, logger); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
