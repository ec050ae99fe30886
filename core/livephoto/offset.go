package livephoto

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/stream"
)

// videoMarker is the ISOBMFF file-type box name. It is always preceded by a
// 4-byte box size field that the pattern itself does not cover, so resolved
// offsets subtract 4 from the match position.
var videoMarker = []byte("ftyp")

const markerSizeField = 4

// reverseOffsetFromTags returns the first usable reverse-offset tag value,
// modern dialect first. Unparseable or non-positive values count as absent.
func reverseOffsetFromTags(tags *core.TagSnapshot) (int64, bool) {
	for _, key := range []string{core.OffsetKeys.Modern, core.OffsetKeys.Legacy} {
		v, ok := tags.Get(key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// resolveOffset is the tag-trusting resolution used at construction: a
// usable reverse-offset tag wins outright, with no physical probe. Only
// when no tag helps does it pay for a full scan.
func resolveOffset(path string, size int64, tags *core.TagSnapshot) (int64, error) {
	if rev, ok := reverseOffsetFromTags(tags); ok {
		offset := size - rev
		if offset >= 0 && offset <= size {
			return offset, nil
		}
	}
	return scanForVideo(path)
}

// scanForVideo streams the file for the first video marker and returns the
// video start: the leftmost match position minus the size field. Single
// forward pass, bounded memory.
func scanForVideo(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return -1, &core.StreamError{Op: "read", Err: err}
	}
	defer f.Close()

	pos, err := stream.FindPattern(f, videoMarker)
	if err != nil {
		if errors.Is(err, stream.ErrPatternNotFound) {
			return -1, &core.OffsetNotFoundError{Path: path}
		}
		return -1, err
	}
	offset := pos - markerSizeField
	if offset < 0 {
		// Marker too close to the file head to be preceded by a size field.
		return -1, &core.OffsetNotFoundError{Path: path}
	}
	return offset, nil
}

// validOffset probes the file for the video marker at offset+4, the cheap
// physical check Repair runs before trusting an existing offset.
func validOffset(path string, offset int64) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	probe := make([]byte, len(videoMarker))
	if _, err := f.ReadAt(probe, offset+markerSizeField); err != nil {
		return false
	}
	return bytes.Equal(probe, videoMarker)
}
