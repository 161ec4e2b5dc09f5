// Package i18n resolves localized strings from YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var builtinFS embed.FS

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Locale translates keys for one language.
type Locale interface {
	Name() string
	// T resolves key and substitutes {arg} placeholders.
	T(key string, args map[string]any) string
	// TStr expands {key} references inside free text, then substitutes args.
	TStr(text string, args map[string]any) string
}

// Bundle holds flattened catalogs keyed by locale name.
type Bundle struct {
	fallback string

	mu       sync.RWMutex
	catalogs map[string]map[string]string
}

// NewBundle creates an empty bundle that falls back to the given locale.
func NewBundle(fallback string) *Bundle {
	return &Bundle{
		fallback: normalizeName(fallback),
		catalogs: make(map[string]map[string]string),
	}
}

// LoadBuiltin creates a bundle from the embedded catalogs.
func LoadBuiltin(fallback string) (*Bundle, error) {
	b := NewBundle(fallback)

	entries, err := builtinFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read builtin locales: %w", err)
	}

	for _, entry := range entries {
		content, err := builtinFS.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin locale %s: %w", entry.Name(), err)
		}
		if err := b.LoadYAML(localeName(entry.Name()), content); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// LoadDir merges every *.yaml / *.yml catalog in dir over the loaded ones.
func (b *Bundle) LoadDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read locale dir: %w", err)
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read locale %s: %w", entry.Name(), err)
		}
		if err := b.LoadYAML(localeName(entry.Name()), content); err != nil {
			return err
		}
	}

	return nil
}

// LoadYAML merges one nested YAML catalog into the named locale.
func (b *Bundle) LoadYAML(name string, content []byte) error {
	var tree map[string]any
	if err := yaml.Unmarshal(content, &tree); err != nil {
		return fmt.Errorf("parse locale %s: %w", name, err)
	}

	flat := make(map[string]string)
	flatten("", tree, flat)

	name = normalizeName(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	catalog, ok := b.catalogs[name]
	if !ok {
		catalog = make(map[string]string, len(flat))
		b.catalogs[name] = catalog
	}
	for key, value := range flat {
		catalog[key] = value
	}

	return nil
}

// Names lists loaded locale names in sorted order.
func (b *Bundle) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.catalogs))
	for name := range b.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Locale returns a translator for name; unknown names use the fallback catalog.
func (b *Bundle) Locale(name string) Locale {
	name = normalizeName(name)
	if name == "" {
		name = b.fallback
	}

	return &locale{bundle: b, name: name}
}

func (b *Bundle) lookup(name string, key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if value, ok := b.catalogs[name][key]; ok {
		return value, true
	}
	if value, ok := b.catalogs[b.fallback][key]; ok {
		return value, true
	}

	return "", false
}

type locale struct {
	bundle *Bundle
	name   string
}

func (l *locale) Name() string {
	return l.name
}

func (l *locale) T(key string, args map[string]any) string {
	value, ok := l.bundle.lookup(l.name, key)
	if !ok {
		return key
	}

	return substitute(value, args, nil)
}

func (l *locale) TStr(text string, args map[string]any) string {
	return substitute(text, args, func(key string) (string, bool) {
		value, ok := l.bundle.lookup(l.name, key)
		if !ok {
			return "", false
		}
		return substitute(value, args, nil), true
	})
}

// substitute replaces {name} with args first, then with resolve when given.
func substitute(text string, args map[string]any, resolve func(string) (string, bool)) string {
	if !strings.Contains(text, "{") {
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := args[key]; ok {
			return fmt.Sprint(value)
		}
		if resolve != nil {
			if value, ok := resolve(key); ok {
				return value
			}
		}
		return match
	})
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		switch typed := value.(type) {
		case map[string]any:
			flatten(full, typed, out)
		case nil:
			out[full] = ""
		default:
			out[full] = fmt.Sprint(typed)
		}
	}
}

func localeName(fileName string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}
