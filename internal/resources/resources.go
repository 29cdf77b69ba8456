// Package resources exposes read-only, URI-addressable access to
// persisted artifacts. The scheme is web_discovery://<project_id>/<path>;
// writes go exclusively through the artifact store.
package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"webatlas/internal/artifacts"
)

// Scheme is the resource URI scheme.
const Scheme = "web_discovery"

// Resource is one addressable artifact.
type Resource struct {
	URI  string `json:"uri"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// Exposer serves artifacts for every project under an output root.
type Exposer struct {
	outputRoot string
}

// NewExposer binds an exposer to the output root.
func NewExposer(outputRoot string) *Exposer {
	return &Exposer{outputRoot: outputRoot}
}

// List enumerates all artifacts across projects, sorted by URI.
func (e *Exposer) List() ([]Resource, error) {
	entries, err := os.ReadDir(e.outputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Resource
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := entry.Name()
		store, serr := artifacts.NewStore(e.outputRoot, projectID)
		if serr != nil {
			continue
		}
		files, lerr := store.ListArtifacts()
		if lerr != nil {
			continue
		}
		for _, rel := range files {
			info, ierr := os.Stat(filepath.Join(store.Dir(), filepath.FromSlash(rel)))
			if ierr != nil {
				continue
			}
			out = append(out, Resource{
				URI:  fmt.Sprintf("%s://%s/%s", Scheme, projectID, rel),
				Mime: mimeFor(rel),
				Size: info.Size(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

// Get returns an artifact's bytes and mime type by URI.
func (e *Exposer) Get(uri string) ([]byte, string, error) {
	projectID, rel, err := ParseURI(uri)
	if err != nil {
		return nil, "", err
	}
	store, err := artifacts.NewStore(e.outputRoot, projectID)
	if err != nil {
		return nil, "", err
	}
	data, err := store.ReadArtifact(rel)
	if err != nil {
		return nil, "", err
	}
	return data, mimeFor(rel), nil
}

// ParseURI splits web_discovery://<project>/<relpath>.
func ParseURI(uri string) (projectID, rel string, err error) {
	prefix := Scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("unsupported resource uri %q", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	projectID, rel, ok := strings.Cut(rest, "/")
	if !ok || projectID == "" || rel == "" {
		return "", "", fmt.Errorf("malformed resource uri %q", uri)
	}
	return projectID, rel, nil
}

func mimeFor(rel string) string {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".log":
		return "application/x-ndjson"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
