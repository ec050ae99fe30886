package livephoto

import (
	"os"
	"strconv"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/jpegmeta"
)

// Repair recomputes the reverse-offset tag and rewrites a consistent tag
// set in both dialects. The branching policy:
//
//   - manualVideoSize > 0: trust the caller, persist that reverse offset.
//   - force: always rescan, ignoring any existing tag or offset.
//   - default: probe the current VideoOffset for the video marker; keep it
//     if the probe matches, rescan if it does not.
//
// Tag writes are batched and saved once: either the full dual-dialect set
// lands or nothing does. An existing presentation timestamp is copied
// forward verbatim across both dialects (modern dialect wins when the two
// disagree); no timestamp is ever invented. On success the model's offset
// and snapshot are updated in place.
func (p *LivePhoto) Repair(force bool, manualVideoSize int64) error {
	fi, err := os.Stat(p.Path)
	if err != nil {
		return &core.StreamError{Op: "read", Err: err}
	}
	size := fi.Size()

	var reverse int64
	switch {
	case manualVideoSize > 0:
		reverse = manualVideoSize
	case force:
		offset, err := scanForVideo(p.Path)
		if err != nil {
			return err
		}
		reverse = size - offset
	default:
		if validOffset(p.Path, p.VideoOffset) {
			reverse = size - p.VideoOffset
		} else {
			offset, err := scanForVideo(p.Path)
			if err != nil {
				return err
			}
			reverse = size - offset
		}
	}
	if reverse < 0 || reverse > size {
		return &core.OffsetNotFoundError{Path: p.Path}
	}

	store, err := WriteOffsetTags(p.Path, reverse)
	if err != nil {
		return err
	}

	// The tag write grew or shrank the header; the reverse-offset
	// convention is exactly what keeps the video position recoverable.
	fi, err = os.Stat(p.Path)
	if err != nil {
		return &core.StreamError{Op: "read", Err: err}
	}
	p.fileSize = fi.Size()
	p.VideoOffset = p.fileSize - reverse
	p.dialects = []string{"MotionPhoto", "MicroVideo"}

	tags := core.SnapshotFrom(store)
	clearContainerTags(tags)
	p.Tags = tags
	return nil
}

// WriteOffsetTags stages the full dual-dialect container tag set on path
// (flag, version, reverse offset, and any pre-existing presentation
// timestamp) and persists it with a single save. Returns the store so
// callers can re-snapshot the written state.
func WriteOffsetTags(path string, reverseOffset int64) (core.TagStore, error) {
	store, err := jpegmeta.Open(path)
	if err != nil {
		return nil, err
	}

	writes := []struct {
		pair  core.DialectPair
		value string
	}{
		{core.FlagKeys, "1"},
		{core.VersionKeys, "1"},
		{core.OffsetKeys, strconv.FormatInt(reverseOffset, 10)},
	}
	if ts, ok := presentationTimestamp(store); ok {
		writes = append(writes, struct {
			pair  core.DialectPair
			value string
		}{core.TimestampKeys, ts})
	}

	for _, w := range writes {
		if err := store.SetString(w.pair.Legacy, w.value); err != nil {
			return nil, err
		}
		if err := store.SetString(w.pair.Modern, w.value); err != nil {
			return nil, err
		}
	}
	if err := store.Save(path); err != nil {
		return nil, err
	}
	return store, nil
}

// presentationTimestamp returns the existing timestamp value, checking the
// modern key before the legacy one. When both are present with different
// values the modern one wins unreconciled; that asymmetry is long-standing
// observed behavior, kept deliberately.
func presentationTimestamp(store core.TagStore) (string, bool) {
	for _, key := range []string{core.TimestampKeys.Modern, core.TimestampKeys.Legacy} {
		if v, ok := store.GetString(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
