package docker

import "context"

// Client resolves tags and labels for one extension image. It fronts the
// Registry V2 client and, for Docker Hub images, the Hub API, preferring
// the latter's richer tag metadata when available.
type Client struct {
	ref      ImageRef
	registry *Registry
	hub      *Hub
}

// ClientOption configures a Client.
type ClientOption struct {
	Registry []RegistryOption
	Hub      []HubOption
	// DisableHub forces the plain V2 tag list even for Docker Hub
	// repositories.
	DisableHub bool
}

// NewClient creates a client for the given image reference string.
func NewClient(imageRef string, opt ClientOption) *Client {
	ref := ParseImageRef(imageRef)
	c := &Client{
		ref:      ref,
		registry: NewRegistry(ref, opt.Registry...),
	}
	if ref.IsDockerHub() && !opt.DisableHub {
		c.hub = NewHub(ref.Repository, opt.Hub...)
	}
	return c
}

// Ref returns the parsed image reference the client operates on.
func (c *Client) Ref() ImageRef {
	return c.ref
}

// Tags lists the published tags of the repository. For Docker Hub images
// each summary carries the active images behind the tag; for other
// registries the summaries hold names only and the images are derived
// later from the manifest.
func (c *Client) Tags(ctx context.Context) ([]TagSummary, error) {
	if c.hub == nil {
		names, err := c.registry.ListTags(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]TagSummary, 0, len(names))
		for _, name := range names {
			summaries = append(summaries, TagSummary{Name: name})
		}
		return summaries, nil
	}

	hubTags, err := c.hub.Tags(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]TagSummary, 0, len(hubTags))
	for _, t := range hubTags {
		summary := TagSummary{Name: t.Name}
		for _, img := range t.Images {
			if img.Status != "active" || img.Architecture == "unknown" || img.OS == "unknown" {
				continue
			}
			summary.Images = append(summary.Images, ImageInfo{
				Digest:       img.Digest,
				ExpandedSize: img.Size,
				Architecture: img.Architecture,
				Variant:      img.Variant,
				OS:           img.OS,
			})
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ResolveTag fetches the label set and image descriptors for one tag via
// the Registry V2 API.
func (c *Client) ResolveTag(ctx context.Context, tag string) (*TagInfo, error) {
	return c.registry.ResolveTag(ctx, tag)
}
