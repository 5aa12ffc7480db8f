package labels

// ExtensionType classifies an extension version.
type ExtensionType string

// Known extension types. Anything else decodes as TypeOther.
const (
	TypeDeviceIntegration ExtensionType = "device-integration"
	TypeTheme             ExtensionType = "theme"
	TypeTool              ExtensionType = "tool"
	TypeExample           ExtensionType = "example"
	TypeOther             ExtensionType = "other"
)

// Valid reports whether t is one of the known extension types.
func (t ExtensionType) Valid() bool {
	switch t {
	case TypeDeviceIntegration, TypeTheme, TypeTool, TypeExample, TypeOther:
		return true
	}
	return false
}

// Author identifies one author of an extension version.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Company identifies the company behind an extension version.
type Company struct {
	Name  string `json:"name"`
	About string `json:"about,omitempty"`
	Email string `json:"email,omitempty"`
}

// Platform describes the platform an image runs on.
type Platform struct {
	Architecture string `json:"architecture"`
	Variant      string `json:"variant,omitempty"`
	OS           string `json:"os,omitempty"`
}

// Image describes one published image backing an extension version.
type Image struct {
	Digest       string   `json:"digest,omitempty"`
	ExpandedSize int64    `json:"expanded_size"`
	Platform     Platform `json:"platform"`
}

// Version is one published, semantically versioned release of an
// extension. It is built once per valid registry tag and never mutated
// after construction.
type Version struct {
	Tag          string            `json:"tag"`
	Website      string            `json:"website"`
	Type         ExtensionType     `json:"type"`
	Docs         string            `json:"docs,omitempty"`
	Readme       string            `json:"readme,omitempty"`
	Support      string            `json:"support,omitempty"`
	Requirements string            `json:"requirements,omitempty"`
	Authors      []Author          `json:"authors"`
	Company      *Company          `json:"company,omitempty"`
	Permissions  map[string]any    `json:"permissions,omitempty"`
	FilterTags   []string          `json:"filter_tags"`
	ExtraLinks   map[string]string `json:"extra_links"`
	Images       []Image           `json:"images"`
}
