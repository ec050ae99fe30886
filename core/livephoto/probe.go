package livephoto

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/motionphoto-go/surgery/core"
)

// Info describes the container for display: physical layout, which offset
// dialects were present at open time, and what can be learned about the
// embedded video without decoding it.
func (p *LivePhoto) Info() (*core.Metadata, error) {
	m := &core.Metadata{FilePath: p.Path, Format: "Motion Photo"}

	dialects := "none (resolved by scan)"
	if len(p.dialects) > 0 {
		dialects = strings.Join(p.dialects, ", ")
	}
	m.Fields = append(m.Fields,
		core.MetaField{Key: "FileSize", Value: fmt.Sprintf("%d bytes", p.fileSize), Category: "Container"},
		core.MetaField{Key: "VideoOffset", Value: fmt.Sprintf("%d", p.VideoOffset), Category: "Container"},
		core.MetaField{Key: "ReverseOffset", Value: fmt.Sprintf("%d", p.fileSize-p.VideoOffset), Category: "Container"},
		core.MetaField{Key: "OffsetDialects", Value: dialects, Category: "Container"},
	)

	f, err := os.Open(p.Path)
	if err != nil {
		return m, err
	}
	defer f.Close()
	sr := io.NewSectionReader(f, p.VideoOffset, p.fileSize-p.VideoOffset)

	brand, duration := probeVideo(sr)
	if brand != "" {
		m.Fields = append(m.Fields, core.MetaField{Key: "Brand", Value: brand, Category: "Video"})
	}
	if duration > 0 {
		m.Fields = append(m.Fields, core.MetaField{
			Key: "Duration", Value: duration.Round(time.Millisecond).String(), Category: "Video",
		})
	}

	// Embedded stream tags, if any. Most camera videos carry none.
	if _, err := sr.Seek(0, io.SeekStart); err == nil {
		if md, err := tag.ReadFrom(sr); err == nil {
			m.Fields = append(m.Fields,
				core.MetaField{Key: "FileType", Value: string(md.FileType()), Category: "Video Tags"})
			if v := md.Title(); v != "" {
				m.Fields = append(m.Fields, core.MetaField{Key: "Title", Value: v, Category: "Video Tags"})
			}
			if v := md.Artist(); v != "" {
				m.Fields = append(m.Fields, core.MetaField{Key: "Artist", Value: v, Category: "Video Tags"})
			}
			if v := md.Comment(); v != "" {
				m.Fields = append(m.Fields, core.MetaField{Key: "Comment", Value: v, Category: "Video Tags"})
			}
		}
	}
	return m, nil
}

// probeVideo walks the top-level ISOBMFF boxes of the video section for the
// ftyp major brand and the mvhd duration. Anything unrecognised is skipped.
func probeVideo(r io.ReadSeeker) (brand string, duration time.Duration) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0
	}
	for {
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return brand, duration
		}
		size := int64(binary.BigEndian.Uint32(hdr[0:4]))
		boxType := string(hdr[4:8])
		dataSize := size - 8
		if size == 1 {
			// Extended size
			ext := make([]byte, 8)
			if _, err := io.ReadFull(r, ext); err != nil {
				return brand, duration
			}
			size = int64(binary.BigEndian.Uint64(ext))
			dataSize = size - 16
		}
		if size == 0 || dataSize < 0 {
			return brand, duration
		}

		cur, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return brand, duration
		}

		switch boxType {
		case "ftyp":
			b := make([]byte, 4)
			if _, err := io.ReadFull(r, b); err == nil {
				brand = strings.TrimSpace(string(b))
			}
		case "moov":
			if d, ok := findMovieDuration(r, cur, cur+dataSize); ok {
				duration = d
			}
		}
		if _, err := r.Seek(cur+dataSize, io.SeekStart); err != nil {
			return brand, duration
		}
	}
}

// findMovieDuration scans the children of a moov box for mvhd.
func findMovieDuration(r io.ReadSeeker, start, limit int64) (time.Duration, bool) {
	pos := start
	for pos+8 <= limit {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return 0, false
		}
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return 0, false
		}
		size := int64(binary.BigEndian.Uint32(hdr[0:4]))
		if size < 8 {
			return 0, false
		}
		if string(hdr[4:8]) == "mvhd" {
			buf := make([]byte, size-8)
			if _, err := io.ReadFull(r, buf); err != nil {
				return 0, false
			}
			return mvhdDuration(buf)
		}
		pos += size
	}
	return 0, false
}

// mvhdDuration decodes the movie-header timescale and duration.
func mvhdDuration(b []byte) (time.Duration, bool) {
	if len(b) < 1 {
		return 0, false
	}
	switch b[0] {
	case 0:
		if len(b) < 20 {
			return 0, false
		}
		scale := binary.BigEndian.Uint32(b[12:16])
		dur := binary.BigEndian.Uint32(b[16:20])
		if scale == 0 {
			return 0, false
		}
		return time.Duration(float64(dur) / float64(scale) * float64(time.Second)), true
	case 1:
		if len(b) < 32 {
			return 0, false
		}
		scale := binary.BigEndian.Uint32(b[20:24])
		dur := binary.BigEndian.Uint64(b[24:32])
		if scale == 0 {
			return 0, false
		}
		return time.Duration(float64(dur) / float64(scale) * float64(time.Second)), true
	}
	return 0, false
}
