package docker

// Descriptor references a manifest, config, or layer object by digest.
type Descriptor struct {
	MediaType string              `json:"mediaType"`
	Size      int64               `json:"size"`
	Digest    string              `json:"digest"`
	Platform  *DescriptorPlatform `json:"platform,omitempty"`
}

// DescriptorPlatform describes the platform a referenced image runs on.
type DescriptorPlatform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Variant      string `json:"variant,omitempty"`
}

// manifestResponse covers both a single image manifest (config + layers)
// and a manifest list / OCI index (manifests). Exactly one of the two
// shapes is populated in any given response.
type manifestResponse struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType"`
	Config        *Descriptor  `json:"config,omitempty"`
	Layers        []Descriptor `json:"layers,omitempty"`
	Manifests     []Descriptor `json:"manifests,omitempty"`
}

// Blob is the image config blob. Only the fields the pipeline reads are
// modeled; labels are the sole source of per-version metadata.
type Blob struct {
	Architecture string     `json:"architecture"`
	OS           string     `json:"os"`
	Config       BlobConfig `json:"config"`
}

// BlobConfig carries the embedded container configuration.
type BlobConfig struct {
	Env    []string          `json:"Env"`
	Labels map[string]string `json:"Labels"`
}

// ImageInfo describes one published image backing a tag.
type ImageInfo struct {
	Digest       string
	ExpandedSize int64
	Architecture string
	Variant      string
	OS           string
}

// TagSummary is one entry of a repository tag listing. Images is only
// populated when the listing came from the Docker Hub API.
type TagSummary struct {
	Name   string
	Images []ImageInfo
}

// TagInfo is the resolved state of a single tag: the label set embedded
// in its config blob plus the images that back it.
type TagInfo struct {
	Labels map[string]string
	Images []ImageInfo
}

// RateLimit is a snapshot of the Docker registry pull rate limit.
type RateLimit struct {
	Limit           int    `json:"limit"`
	Remaining       int    `json:"remaining"`
	IntervalSeconds int    `json:"interval_seconds"`
	SourceIP        string `json:"source_ip"`
}

// registryError is one entry of a Registry V2 API error payload.
type registryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type registryErrorResponse struct {
	Errors []registryError `json:"errors"`
}
