// Package core defines the shared types, errors, and tag-key tables for
// live-photo container surgery.
package core

// MetaField represents a single metadata key-value pair for display.
type MetaField struct {
	Key      string // Canonical field name (e.g. "VideoOffset", "Brand")
	Value    string // String representation of the value
	Category string // Category label (e.g. "Container", "Video")
}

// Metadata holds displayable information about a single file.
type Metadata struct {
	FilePath string
	Format   string // Human-readable format name (e.g. "JPEG", "Motion Photo")
	Fields   []MetaField
}

// ──────────────────────────────────────────────────────────────────────────────
// XMP tag keys
// ──────────────────────────────────────────────────────────────────────────────

// Google camera XMP keys, exiv2-style "Xmp.<prefix>.<property>" naming.
// Two dialects record the same facts: the legacy MicroVideo set and the
// modern MotionPhoto set. Different readers recognise different dialects,
// so writers must keep both populated with identical values.
const (
	KeyMicroVideo            = "Xmp.GCamera.MicroVideo"
	KeyMicroVideoVersion     = "Xmp.GCamera.MicroVideoVersion"
	KeyMicroVideoOffset      = "Xmp.GCamera.MicroVideoOffset"
	KeyMicroVideoTimestampUs = "Xmp.GCamera.MicroVideoPresentationTimestampUs"

	KeyMotionPhoto            = "Xmp.GCamera.MotionPhoto"
	KeyMotionPhotoVersion     = "Xmp.GCamera.MotionPhotoVersion"
	KeyMotionPhotoOffset      = "Xmp.GCamera.MotionPhotoOffset"
	KeyMotionPhotoTimestampUs = "Xmp.GCamera.MotionPhotoPresentationTimestampUs"
)

// DialectPair names the legacy and modern XMP keys for one concept.
type DialectPair struct {
	Legacy string
	Modern string
}

// The concept table. Repair and maker code iterate these pairs instead of
// spelling key literals twice, so one dialect can never drift from the other.
var (
	FlagKeys      = DialectPair{Legacy: KeyMicroVideo, Modern: KeyMotionPhoto}
	VersionKeys   = DialectPair{Legacy: KeyMicroVideoVersion, Modern: KeyMotionPhotoVersion}
	OffsetKeys    = DialectPair{Legacy: KeyMicroVideoOffset, Modern: KeyMotionPhotoOffset}
	TimestampKeys = DialectPair{Legacy: KeyMicroVideoTimestampUs, Modern: KeyMotionPhotoTimestampUs}
)

// ContainerIdentityKeys are the tags that mark a file as a live-photo
// container. They are cleared from exported images so downstream tools do
// not mistake a plain image for a container. Presentation timestamps are
// deliberately not in this list: they are playback hints, not identity, and
// repair copies them forward.
var ContainerIdentityKeys = []string{
	KeyMicroVideo,
	KeyMicroVideoVersion,
	KeyMicroVideoOffset,
	KeyMotionPhoto,
	KeyMotionPhotoVersion,
	KeyMotionPhotoOffset,
}

// ──────────────────────────────────────────────────────────────────────────────
// Tag store
// ──────────────────────────────────────────────────────────────────────────────

// TagStore is the metadata-access collaborator: flat string-keyed tag
// read/write against one backing file. Mutations are staged in memory;
// Save persists the whole staged set in one shot.
type TagStore interface {
	// GetString returns the value for key, if present.
	GetString(key string) (string, bool)
	// SetString stages a value for key. Fails with a TagError for keys the
	// store cannot write (e.g. EXIF fields exposed read-only).
	SetString(key, value string) error
	// Clear removes a staged key.
	Clear(key string)
	// ClearAll removes every writable key.
	ClearAll()
	// Keys lists all known keys in stable order.
	Keys() []string
	// Save persists all staged changes to path, which may differ from the
	// originally opened file.
	Save(path string) error
}

// TagSnapshot is an ordered key→value capture of a file's tags, taken once
// at load time and mutated in memory before any write-back.
type TagSnapshot struct {
	keys   []string
	values map[string]string
}

// NewTagSnapshot returns an empty snapshot.
func NewTagSnapshot() *TagSnapshot {
	return &TagSnapshot{values: make(map[string]string)}
}

// SnapshotFrom captures the current state of a tag store.
func SnapshotFrom(store TagStore) *TagSnapshot {
	s := NewTagSnapshot()
	for _, k := range store.Keys() {
		if v, ok := store.GetString(k); ok {
			s.Set(k, v)
		}
	}
	return s
}

// Get returns the value for key, if present.
func (s *TagSnapshot) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value, preserving first-insertion order for existing keys.
func (s *TagSnapshot) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Clear removes a key.
func (s *TagSnapshot) Clear(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in capture order.
func (s *TagSnapshot) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of captured tags.
func (s *TagSnapshot) Len() int { return len(s.keys) }

// Clone returns an independent copy.
func (s *TagSnapshot) Clone() *TagSnapshot {
	c := NewTagSnapshot()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}
