package catalog

import (
	"bytes"
	"encoding/json"

	"github.com/reefcat/reefcat/internal/labels"
)

// VersionMap maps tag strings to version records while preserving
// insertion order, so the "highest version first" guarantee survives
// JSON serialization. Plain Go maps serialize with sorted keys, which
// would break consumers that treat index 0 as the latest release.
type VersionMap struct {
	tags     []string
	versions map[string]*labels.Version
}

// NewVersionMap creates an empty version map.
func NewVersionMap() *VersionMap {
	return &VersionMap{versions: map[string]*labels.Version{}}
}

// Set appends a version under its tag. A tag that is already present is
// ignored: the first insertion wins.
func (m *VersionMap) Set(tag string, v *labels.Version) {
	if _, ok := m.versions[tag]; ok {
		return
	}
	m.tags = append(m.tags, tag)
	m.versions[tag] = v
}

// Get returns the version stored under tag, or nil.
func (m *VersionMap) Get(tag string) *labels.Version {
	return m.versions[tag]
}

// Len returns the number of stored versions.
func (m *VersionMap) Len() int {
	return len(m.tags)
}

// Tags returns the tags in insertion order.
func (m *VersionMap) Tags() []string {
	out := make([]string, len(m.tags))
	copy(out, m.tags)
	return out
}

// MarshalJSON renders the map as a JSON object with keys in insertion
// order.
func (m *VersionMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tag := range m.tags {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tag)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.versions[tag])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
