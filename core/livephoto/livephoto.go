// Package livephoto models a combined live-photo container file: a static
// JPEG with a video stream appended, plus the XMP tags that record (or fail
// to record) where the video begins. It locates the video offset, splits
// the container into its image and video components, and repairs stale or
// missing offset tags.
package livephoto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/jpegmeta"
	"github.com/motionphoto-go/surgery/core/stream"
)

// Options configures Open.
type Options struct {
	// DestDir is where exports land. Defaults to the container's directory.
	DestDir string
	// SkipMetadata disables writing tags into exported images.
	SkipMetadata bool
}

// LivePhoto represents one combined container file on disk. A successfully
// constructed LivePhoto always has a resolved video offset; there is no such
// thing as a model with an unknown offset.
type LivePhoto struct {
	// Path is the absolute container path, fixed at construction.
	Path string
	// DestDir is the output directory for exports.
	DestDir string
	// VideoOffset is the absolute byte position where the video begins.
	// Invariant: 0 <= VideoOffset <= file size. Updated only by Repair.
	VideoOffset int64
	// Tags is the in-memory tag snapshot, with the container-identity tags
	// already cleared so exported images read as plain images.
	Tags *core.TagSnapshot

	baseName   string // base file name without extension
	ext        string // extension including the dot
	fileSize   int64
	exportMeta bool
	dialects   []string // offset-tag dialects present at open time
}

// Open constructs a LivePhoto from an existing combined file. Resolution
// trusts a present, parseable reverse-offset tag without physical
// validation (that paranoia is reserved for Repair); with no usable tag it
// falls back to scanning for the video container marker. Fails with
// core.NotLiveLikeError when no offset can be resolved.
func Open(path string, opts Options) (*LivePhoto, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &core.NotLiveLikeError{Path: path, Err: err}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, &core.NotLiveLikeError{Path: abs, Err: err}
	}
	size := fi.Size()

	store, err := jpegmeta.Open(abs)
	if err != nil {
		return nil, &core.NotLiveLikeError{Path: abs, Err: err}
	}
	tags := core.SnapshotFrom(store)

	offset, err := resolveOffset(abs, size, tags)
	if err != nil {
		return nil, &core.NotLiveLikeError{Path: abs, Err: err}
	}

	name := filepath.Base(abs)
	ext := filepath.Ext(name)

	p := &LivePhoto{
		Path:        abs,
		DestDir:     opts.DestDir,
		VideoOffset: offset,
		Tags:        tags,
		baseName:    strings.TrimSuffix(name, ext),
		ext:         ext,
		fileSize:    size,
		exportMeta:  !opts.SkipMetadata,
		dialects:    offsetDialects(tags),
	}
	if p.DestDir == "" {
		p.DestDir = filepath.Dir(abs)
	}
	clearContainerTags(p.Tags)
	return p, nil
}

// clearContainerTags removes the container-identity tags from the in-memory
// snapshot only; the backing file is untouched.
func clearContainerTags(tags *core.TagSnapshot) {
	for _, k := range core.ContainerIdentityKeys {
		tags.Clear(k)
	}
}

// offsetDialects reports which reverse-offset dialects a snapshot carries.
func offsetDialects(tags *core.TagSnapshot) []string {
	var out []string
	if _, ok := tags.Get(core.OffsetKeys.Modern); ok {
		out = append(out, "MotionPhoto")
	}
	if _, ok := tags.Get(core.OffsetKeys.Legacy); ok {
		out = append(out, "MicroVideo")
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Naming convention
// ──────────────────────────────────────────────────────────────────────────────

// Companion-file naming: MVIMG-prefixed containers swap to IMG/VID, plain
// IMG containers get a VID video companion, anything else falls back to a
// generic suffix. Purely a default-path generator.

func (p *LivePhoto) defaultImageName() string {
	if rest, ok := strings.CutPrefix(p.baseName, "MVIMG"); ok {
		return "IMG" + rest + p.ext
	}
	return p.baseName + "_0" + p.ext
}

func (p *LivePhoto) defaultVideoName() string {
	if rest, ok := strings.CutPrefix(p.baseName, "MVIMG"); ok {
		return "VID" + rest + ".mp4"
	}
	if rest, ok := strings.CutPrefix(p.baseName, "IMG"); ok {
		return "VID" + rest + ".mp4"
	}
	return p.baseName + ".mp4"
}

// BaseName returns the container's base file name without extension.
func (p *LivePhoto) BaseName() string { return p.baseName }

// FileSize returns the container size observed at open (or last repair).
func (p *LivePhoto) FileSize() int64 { return p.fileSize }

// ──────────────────────────────────────────────────────────────────────────────
// Export
// ──────────────────────────────────────────────────────────────────────────────

// ExportMainImage copies the image portion [0, VideoOffset) to dest (or the
// naming-convention default) and, unless disabled, writes the cleared tag
// snapshot into the new file. A copy failure is fatal and returns an empty
// path. A metadata failure is reported as an error while the returned path
// still names the intact image file: pixels are not best-effort, tags are.
func (p *LivePhoto) ExportMainImage(dest string) (string, error) {
	if dest == "" {
		dest = filepath.Join(p.DestDir, p.defaultImageName())
	}

	src, err := os.Open(p.Path)
	if err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	if err := stream.CopyN(out, src, p.VideoOffset); err != nil {
		out.Close()
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}

	if p.exportMeta {
		if err := writeSnapshot(dest, p.Tags); err != nil {
			return dest, &core.ExportError{Dest: dest, Err: err}
		}
	}
	return dest, nil
}

// writeSnapshot replaces dest's writable tags with the snapshot's XMP set.
func writeSnapshot(dest string, tags *core.TagSnapshot) error {
	store, err := jpegmeta.Open(dest)
	if err != nil {
		return err
	}
	store.ClearAll()
	for _, k := range tags.Keys() {
		if !strings.HasPrefix(k, "Xmp.") {
			continue
		}
		v, _ := tags.Get(k)
		if err := store.SetString(k, v); err != nil {
			return err
		}
	}
	return store.Save(dest)
}

// ExportVideo copies the video portion [VideoOffset, EOF) to dest (or the
// naming-convention default). The stream passes through byte-for-byte; no
// metadata is attached.
func (p *LivePhoto) ExportVideo(dest string) (string, error) {
	if dest == "" {
		dest = filepath.Join(p.DestDir, p.defaultVideoName())
	}

	src, err := os.Open(p.Path)
	if err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	if _, err := stream.CopyFromOffset(out, src, p.VideoOffset); err != nil {
		out.Close()
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &core.ExportError{Dest: dest, Err: err}
	}
	return dest, nil
}

// VideoReader returns a reader over the video portion plus its length. The
// caller owns the closer. This is the seekable byte source handed to the
// external frame exporter.
func (p *LivePhoto) VideoReader() (*os.File, int64, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, 0, err
	}
	if _, err := f.Seek(p.VideoOffset, 0); err != nil {
		f.Close()
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size() - p.VideoOffset, nil
}

func (p *LivePhoto) String() string {
	return fmt.Sprintf("LivePhoto(%s, video@%d)", p.Path, p.VideoOffset)
}
