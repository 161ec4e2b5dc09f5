package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Cache allocates randomly named files under one directory.
type Cache struct {
	dir string
}

// NewCache creates dir when missing and returns a cache rooted at its absolute form.
func NewCache(dir string) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, NewError(ErrorIO, "cache directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &Cache{dir: abs}, nil
}

// Dir returns the absolute cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// RandomPath returns a fresh absolute path with the given extension.
func (c *Cache) RandomPath(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}

	return filepath.Join(c.dir, name)
}

// Write persists data under a random name and returns its absolute path.
func (c *Cache) Write(data []byte, ext string) (string, error) {
	path := c.RandomPath(ext)

	// Write to a temp name first so readers never observe a partial file.
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", NewError(ErrorIO, err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", NewError(ErrorIO, err.Error())
	}

	return path, nil
}
