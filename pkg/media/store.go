package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMediaPath is the base directory for stored media
	DefaultMediaPath = "./cadence-data/media"
)

// extensions maps the content types Cadence accepts to file extensions
var extensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
}

// LocalStore keeps media files in a directory that the API server exposes
// under a public base URL
type LocalStore struct {
	basePath string
	baseURL  string
}

// NewLocalStore creates a store rooted at basePath. Stored files are
// addressed as baseURL/<name>.
func NewLocalStore(basePath, baseURL string) (*LocalStore, error) {
	if basePath == "" {
		basePath = DefaultMediaPath
	}
	if baseURL == "" {
		return nil, fmt.Errorf("media base URL is required")
	}

	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save writes data under a fresh name and returns its public URL
func (s *LocalStore) Save(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty media payload")
	}
	ext, ok := Extension(contentType)
	if !ok {
		return "", fmt.Errorf("unsupported media format: %s", contentType)
	}

	name := uuid.New().String() + ext
	path := filepath.Join(s.basePath, name)

	// Write to a temp file first so a reader never sees a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to store media file: %w", err)
	}

	return s.URL(name), nil
}

// URL returns the public URL for a stored name
func (s *LocalStore) URL(name string) string {
	return s.baseURL + "/" + name
}

// Path returns the on-disk path for a stored name. Names that would escape
// the base directory are rejected.
func (s *LocalStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media name: %q", name)
	}
	return filepath.Join(s.basePath, name), nil
}

// Delete removes a stored file. Deleting a missing file is not an error.
func (s *LocalStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// Dir returns the base directory
func (s *LocalStore) Dir() string {
	return s.basePath
}

// Extension returns the file extension for a supported content type
func Extension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := extensions[mediaType]
	return ext, ok
}
