// Package jpegmeta is the tag-access layer for JPEG files: a flat
// string-keyed view over the XMP packet (writable) and the EXIF IFDs
// (read-only), using exiv2-style "Xmp.GCamera.MicroVideo" key naming.
//
// Only the JPEG header segments are held in memory. Everything after the
// start-of-scan marker (entropy-coded pixels, the EOI, any appended video
// stream) stays on disk and is copied through verbatim on Save, so a
// multi-gigabyte live-photo container can be retagged without loading it.
package jpegmeta

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/motionphoto-go/surgery/core"
	"github.com/motionphoto-go/surgery/core/stream"
)

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA

	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
)

var (
	exifPrefix = []byte("Exif\x00\x00")
	xmpPrefix  = []byte("http://ns.adobe.com/xap/1.0/\x00")
)

// xmpPrefixes maps namespace URIs to the exiv2 key prefix.
var xmpPrefixes = map[string]string{
	"http://ns.google.com/photos/1.0/camera/": "GCamera",
	"http://ns.adobe.com/xap/1.0/":            "xmp",
}

// xmpNamespaces is the reverse: exiv2 key prefix to namespace URI.
var xmpNamespaces = func() map[string]string {
	m := make(map[string]string, len(xmpPrefixes))
	for uri, p := range xmpPrefixes {
		m[p] = uri
	}
	return m
}()

type segment struct {
	marker byte
	data   []byte
}

// Store implements core.TagStore for one JPEG file.
type Store struct {
	path       string
	segments   []segment // SOI through the last parsed header segment
	tailOffset int64     // file offset of unparsed trailing bytes, -1 if none
	xmpIndex   int       // index in segments of the XMP APP1, -1 if absent
	tags       *core.TagSnapshot
}

var _ core.TagStore = (*Store)(nil)

// Open parses the header segments of path and loads its tags.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.TagError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	s := &Store{
		path:       path,
		tailOffset: -1,
		xmpIndex:   -1,
		tags:       core.NewTagSnapshot(),
	}
	if err := s.parseSegments(f); err != nil {
		return nil, &core.TagError{Path: path, Op: "open", Err: err}
	}
	s.loadTags()
	return s, nil
}

// parseSegments reads SOI plus every length-prefixed header segment, stopping
// at SOS or EOI. The remainder of the file becomes the verbatim tail.
func (s *Store) parseSegments(f *os.File) error {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(f, buf); err != nil {
		return err
	}
	if buf[0] != 0xFF || buf[1] != markerSOI {
		return fmt.Errorf("not a JPEG")
	}
	s.segments = append(s.segments, segment{marker: markerSOI})
	pos := int64(2)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF {
				return nil // header-only file
			}
			return err
		}
		pos += 2
		if buf[0] != 0xFF {
			// Unexpected raw byte: keep everything from here as tail.
			s.tailOffset = pos - 2
			return nil
		}
		marker := buf[1]

		// Optional 0xFF fill bytes may pad the gap before a marker;
		// skip them. They are not preserved on save.
		for marker == 0xFF {
			one := make([]byte, 1)
			if _, err := io.ReadFull(f, one); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			pos++
			marker = one[0]
		}

		if marker == markerEOI {
			s.segments = append(s.segments, segment{marker: markerEOI})
			s.tailOffset = pos
			return nil
		}

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(f, lenBuf); err != nil {
			return err
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf)) - 2
		if segLen < 0 {
			return fmt.Errorf("invalid segment length at offset %d", pos)
		}
		data := make([]byte, segLen)
		if _, err := io.ReadFull(f, data); err != nil {
			return err
		}
		pos += int64(2 + segLen)
		s.segments = append(s.segments, segment{marker: marker, data: data})

		if marker == markerSOS {
			// Entropy-coded data, EOI, and any appended stream follow.
			s.tailOffset = pos
			return nil
		}
	}
}

// loadTags populates the snapshot from the parsed segments: XMP first (those
// keys are writable), then EXIF (read-only view).
func (s *Store) loadTags() {
	for i, seg := range s.segments {
		if seg.marker != markerAPP1 {
			continue
		}
		switch {
		case bytes.HasPrefix(seg.data, xmpPrefix):
			s.xmpIndex = i
			parseXMP(seg.data[len(xmpPrefix):], s.tags)
		case bytes.HasPrefix(seg.data, exifPrefix):
			x, err := exif.Decode(bytes.NewReader(seg.data[len(exifPrefix):]))
			if err == nil {
				x.Walk(exifWalker{tags: s.tags})
			}
		}
	}
}

type exifWalker struct {
	tags *core.TagSnapshot
}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	w.tags.Set("Exif.Image."+string(name), val)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// core.TagStore
// ──────────────────────────────────────────────────────────────────────────────

// GetString returns the value for key, if present.
func (s *Store) GetString(key string) (string, bool) {
	return s.tags.Get(key)
}

// SetString stages a value. Only "Xmp.<Prefix>.<Name>" keys with a known
// namespace prefix are writable; EXIF keys are a read-only view.
func (s *Store) SetString(key, value string) error {
	prefix, _, err := splitXMPKey(key)
	if err != nil {
		return &core.TagError{Path: s.path, Op: "set", Err: err}
	}
	if _, ok := xmpNamespaces[prefix]; !ok {
		return &core.TagError{Path: s.path, Op: "set",
			Err: fmt.Errorf("unknown XMP namespace prefix %q", prefix)}
	}
	s.tags.Set(key, value)
	return nil
}

// Clear removes a staged key.
func (s *Store) Clear(key string) {
	s.tags.Clear(key)
}

// ClearAll removes every writable (XMP) key.
func (s *Store) ClearAll() {
	for _, k := range s.tags.Keys() {
		if strings.HasPrefix(k, "Xmp.") {
			s.tags.Clear(k)
		}
	}
}

// Keys lists all known keys in capture order.
func (s *Store) Keys() []string {
	return s.tags.Keys()
}

// Save writes the staged tag set to path. The XMP segment is rebuilt from
// the staged keys; every other segment and the entire tail (pixels plus any
// appended video) pass through byte-for-byte. The write goes to a temp file
// in the destination directory and is renamed into place, so a failure
// never leaves a half-written tag set behind.
func (s *Store) Save(path string) error {
	segs := s.outputSegments()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return &core.TagError{Path: path, Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &core.TagError{Path: path, Op: "save", Err: err}
	}

	for _, seg := range segs {
		if err := writeSegment(tmp, seg); err != nil {
			return fail(err)
		}
	}
	if s.tailOffset >= 0 {
		src, err := os.Open(s.path)
		if err != nil {
			return fail(err)
		}
		_, cerr := stream.CopyFromOffset(tmp, src, s.tailOffset)
		src.Close()
		if cerr != nil {
			return fail(cerr)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &core.TagError{Path: path, Op: "save", Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &core.TagError{Path: path, Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &core.TagError{Path: path, Op: "save", Err: err}
	}
	return nil
}

// outputSegments returns the header segments with the XMP APP1 replaced,
// inserted, or dropped to match the staged tag set.
func (s *Store) outputSegments() []segment {
	var entries []kv
	for _, k := range s.tags.Keys() {
		if strings.HasPrefix(k, "Xmp.") {
			v, _ := s.tags.Get(k)
			entries = append(entries, kv{key: k, value: v})
		}
	}

	segs := make([]segment, len(s.segments))
	copy(segs, s.segments)

	if len(entries) == 0 {
		if s.xmpIndex >= 0 {
			segs = append(segs[:s.xmpIndex], segs[s.xmpIndex+1:]...)
		}
		return segs
	}

	packet := buildXMPPacket(entries)
	data := append(append([]byte{}, xmpPrefix...), packet...)
	newSeg := segment{marker: markerAPP1, data: data}

	if s.xmpIndex >= 0 {
		segs[s.xmpIndex] = newSeg
		return segs
	}
	// Insert after the initial APP0/APP1 run, keeping JFIF and EXIF first.
	at := 1
	for at < len(segs) && (segs[at].marker == markerAPP0 || segs[at].marker == markerAPP1) {
		at++
	}
	segs = append(segs, segment{})
	copy(segs[at+1:], segs[at:])
	segs[at] = newSeg
	return segs
}

func writeSegment(w io.Writer, seg segment) error {
	switch seg.marker {
	case markerSOI, markerEOI:
		_, err := w.Write([]byte{0xFF, seg.marker})
		return err
	default:
		hdr := []byte{0xFF, seg.marker, 0, 0}
		binary.BigEndian.PutUint16(hdr[2:], uint16(len(seg.data)+2))
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		_, err := w.Write(seg.data)
		return err
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// XMP packet
// ──────────────────────────────────────────────────────────────────────────────

type kv struct {
	key   string
	value string
}

// splitXMPKey splits "Xmp.GCamera.MicroVideo" into ("GCamera", "MicroVideo").
func splitXMPKey(key string) (prefix, name string, err error) {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[0] != "Xmp" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid XMP key %q", key)
	}
	return parts[1], parts[2], nil
}

// parseXMP extracts simple properties from an XMP packet into the snapshot.
// Both attribute form and element form on rdf:Description are accepted.
func parseXMP(data []byte, tags *core.TagSnapshot) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var currentKey string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Description" {
				for _, attr := range t.Attr {
					if prefix, ok := xmpPrefixes[attr.Name.Space]; ok {
						tags.Set("Xmp."+prefix+"."+attr.Name.Local, attr.Value)
					}
				}
				currentKey = ""
				continue
			}
			if prefix, ok := xmpPrefixes[t.Name.Space]; ok {
				currentKey = "Xmp." + prefix + "." + t.Name.Local
			} else {
				currentKey = ""
			}
		case xml.CharData:
			if currentKey != "" {
				val := strings.TrimSpace(string(t))
				if val != "" {
					tags.Set(currentKey, val)
				}
			}
		case xml.EndElement:
			currentKey = ""
		}
	}
}

// buildXMPPacket serialises the staged XMP keys as attributes of a single
// rdf:Description. Keys are sorted, so the same tag set always produces the
// same bytes regardless of capture order.
func buildXMPPacket(entries []kv) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	prefixes := map[string]bool{}
	for _, e := range entries {
		p, _, err := splitXMPKey(e.key)
		if err != nil {
			continue
		}
		prefixes[p] = true
	}
	used := make([]string, 0, len(prefixes))
	for p := range prefixes {
		used = append(used, p)
	}
	sort.Strings(used)

	var buf bytes.Buffer
	buf.WriteString("<?xpacket begin=\"\xEF\xBB\xBF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	buf.WriteString("<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	buf.WriteString(" <rdf:RDF xmlns:rdf=\"http://www.w3.org/1999/02/22-rdf-syntax-ns#\">\n")
	buf.WriteString("  <rdf:Description rdf:about=\"\"")
	for _, p := range used {
		fmt.Fprintf(&buf, "\n    xmlns:%s=%q", p, xmpNamespaces[p])
	}
	for _, e := range entries {
		p, name, err := splitXMPKey(e.key)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "\n    %s:%s=\"%s\"", p, name, xmlEscape(e.value))
	}
	buf.WriteString("/>\n")
	buf.WriteString(" </rdf:RDF>\n")
	buf.WriteString("</x:xmpmeta>\n")
	buf.WriteString("<?xpacket end=\"w\"?>")
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
