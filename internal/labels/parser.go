package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVersionLabels marks a tag whose mandatory labels (version,
// website) are missing or malformed. The tag is dropped; the extension
// and its other tags are unaffected.
var ErrInvalidVersionLabels = errors.New("invalid version labels")

// MaxFilterTags caps the number of filter tags kept per version. Extra
// tags are truncated, not rejected.
const MaxFilterTags = 10

// Parse decodes the raw label set for one registry tag into a Version.
// Optional labels that fail to decode are dropped and reported in the
// returned warnings. It returns ErrInvalidVersionLabels when the
// mandatory version or website labels are absent or malformed.
func Parse(tag string, raw map[string]string) (*Version, []string, error) {
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	versionLabel, ok := raw["version"]
	if !ok || versionLabel == "" {
		return nil, warnings, fmt.Errorf("%w: missing mandatory label %q", ErrInvalidVersionLabels, "version")
	}
	if !ValidSemver(versionLabel) {
		return nil, warnings, fmt.Errorf("%w: label version=%q is not a semantic version", ErrInvalidVersionLabels, versionLabel)
	}

	// The links label is a JSON object of named URLs. The well-known
	// entries are promoted to their own fields; whatever remains is kept
	// as extra links.
	links := map[string]string{}
	if rawLinks, ok := raw["links"]; ok {
		if err := json.Unmarshal([]byte(rawLinks), &links); err != nil {
			warnf("dropping malformed links label: %v", err)
			links = map[string]string{}
		}
	}

	website := popLink(links, raw, "website")
	if website == "" {
		return nil, warnings, fmt.Errorf("%w: missing mandatory label %q", ErrInvalidVersionLabels, "website")
	}

	// Older images published documentation under its own label; newer
	// ones put it in links as "docs" or "documentation". Both spellings
	// are consumed so neither leaks into extra links.
	docs := popLink(links, raw, "docs")
	if alt := popLink(links, raw, "documentation"); docs == "" {
		docs = alt
	}
	support := popLink(links, raw, "support")

	readme := raw["readme"]
	if readme != "" {
		readme = strings.ReplaceAll(readme, "{tag}", tag)
	}

	authors := []Author{}
	if rawAuthors, ok := raw["authors"]; ok {
		if err := json.Unmarshal([]byte(rawAuthors), &authors); err != nil {
			warnf("dropping malformed authors label: %v", err)
			authors = []Author{}
		}
	}

	var company *Company
	if rawCompany, ok := raw["company"]; ok {
		var c Company
		if err := json.Unmarshal([]byte(rawCompany), &c); err != nil {
			warnf("dropping malformed company label: %v", err)
		} else if c.Name == "" {
			warnf("dropping company label without a name")
		} else {
			company = &c
		}
	}

	var permissions map[string]any
	if rawPermissions, ok := raw["permissions"]; ok {
		if err := json.Unmarshal([]byte(rawPermissions), &permissions); err != nil {
			warnf("dropping malformed permissions label: %v", err)
			permissions = nil
		}
	}

	extType := TypeOther
	if rawType, ok := raw["type"]; ok {
		if t := ExtensionType(rawType); t.Valid() {
			extType = t
		} else {
			warnf("unknown extension type %q, falling back to %q", rawType, TypeOther)
		}
	}

	filterTags := []string{}
	if rawTags, ok := raw["tags"]; ok {
		var tags []string
		if err := json.Unmarshal([]byte(rawTags), &tags); err != nil {
			warnf("dropping malformed tags label: %v", err)
		} else {
			filterTags = NormalizeFilterTags(tags)
		}
	}

	return &Version{
		Tag:          tag,
		Website:      website,
		Type:         extType,
		Docs:         docs,
		Readme:       readme,
		Support:      support,
		Requirements: raw["requirements"],
		Authors:      authors,
		Company:      company,
		Permissions:  permissions,
		FilterTags:   filterTags,
		ExtraLinks:   links,
		Images:       []Image{},
	}, warnings, nil
}

// NormalizeFilterTags lowercases tags, keeps only alphanumeric tags
// (dashes allowed), and truncates the result to MaxFilterTags entries.
func NormalizeFilterTags(tags []string) []string {
	out := []string{}
	for _, tag := range tags {
		if tag == "" || !alnumDash(tag) {
			continue
		}
		out = append(out, strings.ToLower(tag))
		if len(out) == MaxFilterTags {
			break
		}
	}
	return out
}

// popLink removes name from links, falling back to the flat label of the
// same name when the links object does not carry it.
func popLink(links map[string]string, raw map[string]string, name string) string {
	if v, ok := links[name]; ok {
		delete(links, name)
		return v
	}
	return raw[name]
}

// alnumDash reports whether s consists of letters, digits, and dashes,
// with at least one character that is not a dash.
func alnumDash(s string) bool {
	alnum := 0
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			alnum++
		case r == '-':
		default:
			return false
		}
	}
	return alnum > 0
}
