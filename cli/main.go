// Command mvimg splits, assembles, repairs, and inspects live-photo
// container files (JPEG with an appended video stream).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/config"
	"github.com/motionphoto-go/surgery/core/frames"
	"github.com/motionphoto-go/surgery/core/livephoto"
	"github.com/motionphoto-go/surgery/core/maker"
)

const usage = `Usage: mvimg <command> [flags] <file>

Commands:
  extract   split a container into its image and video parts
  make      assemble a container from an image and a video
  repair    rewrite the offset tags to match the physical layout
  info      show container and embedded-video details

Run "mvimg <command> --help" for command flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		err = cmdExtract(os.Args[2:], cfg)
	case "make":
		err = cmdMake(os.Args[2:], cfg)
	case "repair":
		err = cmdRepair(os.Args[2:], cfg)
	case "info":
		err = cmdInfo(os.Args[2:], cfg)
	case "help", "--help", "-h":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(1)
	}
	if err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
}

// newLogger builds the diagnostic logger. Output goes to stderr so it never
// mixes with printed results.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// onePositional parses flags and demands exactly one remaining argument.
func onePositional(fs *pflag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument", what)
	}
	return fs.Arg(0), nil
}

func cmdExtract(args []string, cfg *config.Config) error {
	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	destDir := fs.StringP("dest-dir", "d", cfg.DestDir, "output directory (default: alongside the container)")
	imageOut := fs.String("image", "", "explicit image output path")
	videoOut := fs.String("video", "", "explicit video output path")
	noMeta := fs.Bool("no-metadata", !cfg.WantMetadata(), "do not write tags into the exported image")
	doFrames := fs.Bool("frames", false, "also decode the video into still frames")
	frameFormat := fs.String("frame-format", cfg.FrameFormat, "frame image format (default jpg)")
	ffmpeg := fs.String("ffmpeg", cfg.FFmpeg, "decoder binary for --frames")
	verbose := fs.BoolP("verbose", "v", cfg.Verbose, "debug logging")

	file, err := onePositional(fs, args, "container")
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)
	defer logger.Sync()

	p, err := livephoto.Open(file, livephoto.Options{
		DestDir:      *destDir,
		SkipMetadata: *noMeta,
	})
	if err != nil {
		return err
	}
	logger.Debug("container opened", zap.Int64("videoOffset", p.VideoOffset))

	// An empty returned path means the copy itself failed; a path plus an
	// error means the pixels landed but the metadata write did not.
	imgPath, imgErr := p.ExportMainImage(*imageOut)
	if imgPath == "" {
		return imgErr
	}
	vidPath, err := p.ExportVideo(*videoOut)
	if err != nil {
		return err
	}

	printer := core.NewPrinter(false, *verbose)
	printer.PrintSuccess("image: " + imgPath)
	printer.PrintSuccess("video: " + vidPath)
	if imgErr != nil {
		printer.PrintInfo("warning: image exported without metadata: " + imgErr.Error())
	}

	if *doFrames {
		src, _, err := p.VideoReader()
		if err != nil {
			return err
		}
		defer src.Close()

		exp := &frames.Exporter{
			FFmpeg: *ffmpeg,
			Format: *frameFormat,
			Logger: logger,
		}
		if !*noMeta {
			exp.Tags = p.Tags
		}
		framePaths, err := exp.Export(src, p.DestDir, p.BaseName())
		if err != nil {
			return err
		}
		printer.PrintSuccess(fmt.Sprintf("frames: %d files under %s", len(framePaths), p.DestDir))
	}
	return nil
}

func cmdMake(args []string, cfg *config.Config) error {
	fs := pflag.NewFlagSet("make", pflag.ContinueOnError)
	image := fs.StringP("image", "i", "", "main image (default: first video frame)")
	dest := fs.StringP("output", "o", "", "output container path")
	ffmpeg := fs.String("ffmpeg", cfg.FFmpeg, "decoder binary for first-frame extraction")
	verbose := fs.BoolP("verbose", "v", cfg.Verbose, "debug logging")

	video, err := onePositional(fs, args, "video")
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)
	defer logger.Sync()

	m, err := maker.New(*image, video, *dest)
	if err != nil {
		return err
	}
	m.FFmpeg = *ffmpeg
	m.Logger = logger

	if err := m.Export(); err != nil {
		return err
	}
	core.NewPrinter(false, *verbose).PrintSuccess("container: " + m.DestPath)
	return nil
}

func cmdRepair(args []string, cfg *config.Config) error {
	fs := pflag.NewFlagSet("repair", pflag.ContinueOnError)
	force := fs.BoolP("force", "f", false, "rescan and rewrite even when the existing offset validates")
	videoSize := fs.Int64("video-size", 0, "trust this video size in bytes instead of scanning")
	verbose := fs.BoolP("verbose", "v", cfg.Verbose, "debug logging")

	file, err := onePositional(fs, args, "container")
	if err != nil {
		return err
	}
	logger := newLogger(*verbose)
	defer logger.Sync()

	p, err := livephoto.Open(file, livephoto.Options{})
	if err != nil {
		return err
	}
	before := p.VideoOffset
	if err := p.Repair(*force, *videoSize); err != nil {
		return err
	}
	logger.Debug("repair complete",
		zap.Int64("offsetBefore", before), zap.Int64("offsetAfter", p.VideoOffset))

	core.NewPrinter(false, *verbose).PrintSuccess(
		fmt.Sprintf("%s: video offset %d", p.Path, p.VideoOffset))
	return nil
}

func cmdInfo(args []string, cfg *config.Config) error {
	fs := pflag.NewFlagSet("info", pflag.ContinueOnError)
	jsonMode := fs.Bool("json", false, "machine-readable output")
	verbose := fs.BoolP("verbose", "v", cfg.Verbose, "debug logging")

	file, err := onePositional(fs, args, "container")
	if err != nil {
		return err
	}

	p, err := livephoto.Open(file, livephoto.Options{})
	if err != nil {
		return err
	}
	meta, err := p.Info()
	if err != nil {
		return err
	}
	core.NewPrinter(*jsonMode, *verbose).PrintMetadata(meta)
	return nil
}
