package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrMalformedStaticMetadata marks a metadata file that is missing
// required fields or is not valid structured data. The extension is
// skipped and reported; the scan continues.
var ErrMalformedStaticMetadata = errors.New("malformed static metadata")

// metadataNames is the fallback order for finding the per-extension
// metadata file. The decoder accepts YAML, a superset of JSON, so both
// spellings share one code path.
var metadataNames = []string{"metadata.json", "metadata.yaml"}

const (
	extensionLogoName = "extension_logo.png"
	companyLogoName   = "company_logo.png"
)

// Record is the static metadata of one extension, as stored in the tree.
type Record struct {
	Identifier  string `yaml:"-"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Docker      string `yaml:"docker"`
	Website     string `yaml:"website"`

	// Logo URLs resolved against the raw-content base URL of the tree.
	ExtensionLogo string `yaml:"-"`
	CompanyLogo   string `yaml:"-"`
}

// Problem is a per-extension scan failure. It never aborts the scan.
type Problem struct {
	Identifier string
	Path       string
	Err        error
}

// Scan walks the metadata tree rooted at root and returns one record per
// extension directory holding a metadata file, in lexical path order.
// The identifier is derived from the two path components enclosing the
// metadata file ("company/extension" becomes "company.extension"). Logo
// paths are resolved to URLs under baseURL. Malformed entries are
// reported as problems, not errors; the error return is reserved for a
// total inability to enumerate the tree.
func Scan(root, baseURL string) ([]Record, []Problem, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil, fmt.Errorf("enumerating metadata tree %s: %w", root, err)
	}

	var records []Record
	var problems []Problem

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			problems = append(problems, Problem{Path: path, Err: err})
			return nil
		}
		if d.IsDir() || !isMetadataFile(d.Name()) {
			return nil
		}
		// One metadata file per directory; metadata.json wins when both
		// spellings are present.
		if d.Name() == "metadata.yaml" {
			if _, statErr := os.Stat(filepath.Join(filepath.Dir(path), "metadata.json")); statErr == nil {
				return nil
			}
		}

		identifier := identifierFromPath(path)
		record, err := readRecord(path)
		if err != nil {
			problems = append(problems, Problem{Identifier: identifier, Path: path, Err: err})
			return nil
		}

		record.Identifier = identifier
		record.ExtensionLogo, record.CompanyLogo = resolveLogos(root, baseURL, path)
		records = append(records, *record)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("enumerating metadata tree %s: %w", root, err)
	}

	return records, problems, nil
}

// readRecord decodes and schema-validates one metadata file.
func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	result, err := Validate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStaticMetadata, err)
	}
	if !result.Valid {
		details := make([]string, 0, len(result.Issues))
		for _, issue := range result.Issues {
			details = append(details, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedStaticMetadata, strings.Join(details, "; "))
	}

	var record Record
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStaticMetadata, err)
	}
	return &record, nil
}

// identifierFromPath derives the unique extension identifier from the
// two directories enclosing the metadata file.
func identifierFromPath(path string) string {
	dir := filepath.Dir(path)
	extension := filepath.Base(dir)
	company := filepath.Base(filepath.Dir(dir))
	return company + "." + extension
}

// resolveLogos returns the extension and company logo URLs. The
// extension logo lives beside the metadata file and falls back to the
// company-level logo; either may be absent.
func resolveLogos(root, baseURL, metadataPath string) (extensionLogo, companyLogo string) {
	dir := filepath.Dir(metadataPath)

	companyLogoPath := filepath.Join(filepath.Dir(dir), companyLogoName)
	if _, err := os.Stat(companyLogoPath); err == nil {
		companyLogo = logoURL(root, baseURL, companyLogoPath)
	}

	extensionLogoPath := filepath.Join(dir, extensionLogoName)
	if _, err := os.Stat(extensionLogoPath); err == nil {
		extensionLogo = logoURL(root, baseURL, extensionLogoPath)
	} else {
		extensionLogo = companyLogo
	}
	return extensionLogo, companyLogo
}

func logoURL(root, baseURL, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + filepath.ToSlash(rel)
}

func isMetadataFile(name string) bool {
	for _, n := range metadataNames {
		if name == n {
			return true
		}
	}
	return false
}
