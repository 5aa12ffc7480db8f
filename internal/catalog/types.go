package catalog

// RepositoryEntry is one extension in the consolidated manifest: its
// static metadata joined with every validated version, highest first.
// Entries are frozen once added to the output document.
type RepositoryEntry struct {
	Identifier    string      `json:"identifier"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Docker        string      `json:"docker"`
	Website       string      `json:"website"`
	Versions      *VersionMap `json:"versions"`
	ExtensionLogo string      `json:"extension_logo,omitempty"`
	CompanyLogo   string      `json:"company_logo,omitempty"`
}
