package docker

import "strings"

// ImageRef is a parsed image reference. It handles Docker Hub short
// references ("bluerobotics/cockpit") as well as fully qualified ones
// ("ghcr.io/org/repo").
type ImageRef struct {
	Registry   string
	Repository string
}

// ParseImageRef splits an image reference into registry and repository
// components. Any tag or digest suffix is discarded. A first path
// segment containing a dot, a colon, or equal to "localhost" is treated
// as the registry host; everything else defaults to Docker Hub.
func ParseImageRef(ref string) ImageRef {
	name := ref
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	// A colon after the last slash is a tag separator, not a port.
	if i := strings.LastIndexByte(name, ':'); i > strings.LastIndexByte(name, '/') {
		name = name[:i]
	}

	parts := strings.Split(name, "/")
	if len(parts) >= 3 && (strings.ContainsAny(parts[0], ".:") || parts[0] == "localhost") {
		return ImageRef{Registry: parts[0], Repository: strings.Join(parts[1:], "/")}
	}
	return ImageRef{Registry: "docker.io", Repository: name}
}

// IsDockerHub reports whether the reference points at Docker Hub.
func (r ImageRef) IsDockerHub() bool {
	switch r.Registry {
	case "docker.io", "registry-1.docker.io", "index.docker.io":
		return true
	}
	return false
}

// IsGHCR reports whether the reference points at the GitHub Container Registry.
func (r ImageRef) IsGHCR() bool {
	return r.Registry == "ghcr.io"
}

// RegistryURL returns the base URL for the Registry V2 API.
func (r ImageRef) RegistryURL() string {
	if r.IsDockerHub() {
		return "https://registry-1.docker.io"
	}
	return "https://" + r.Registry
}

// AuthURL returns the base URL of the token authentication endpoint.
// Most OCI registries serve it on the registry host itself; Docker Hub
// uses a dedicated auth host.
func (r ImageRef) AuthURL() string {
	if r.IsDockerHub() {
		return "https://auth.docker.io"
	}
	return "https://" + r.Registry
}

// AuthService returns the service parameter sent to the token endpoint.
func (r ImageRef) AuthService() string {
	if r.IsDockerHub() {
		return "registry.docker.io"
	}
	return r.Registry
}
