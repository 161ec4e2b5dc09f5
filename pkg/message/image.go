package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"

	"github.com/disintegration/imaging"

	"relaybot/pkg/resource"
)

const noisePatchSize = 50

var remotePattern = regexp.MustCompile(`^https?://`)

// ErrNoFetcher is returned when a remote image is consumed without a fetcher.
var ErrNoFetcher = errors.New("remote image requires a fetcher")

// ResourceFetcher resolves remote resources into local files.
type ResourceFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (string, error)
}

// Image is a local file or a remote URL fetched lazily on consumption.
type Image struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NewImage wraps a local path or remote URL.
func NewImage(source string, headers map[string]string) Image {
	return Image{Path: source, Headers: headers}
}

// NewImageFromBitmap encodes img as PNG into the cache right away.
func NewImageFromBitmap(img image.Image, cache *resource.Cache) (Image, error) {
	if cache == nil {
		return Image{}, errors.New("bitmap image requires a cache")
	}

	path := cache.RandomPath("png")
	if err := imaging.Save(img, path); err != nil {
		return Image{}, fmt.Errorf("save bitmap image: %w", err)
	}

	return Image{Path: path}, nil
}

func (Image) Kind() Kind { return KindImage }

func (i Image) Render(rc RenderContext) string { return "[Image]" }

func (Image) isElement() {}

// Remote reports whether the source is an http(s) URL.
func (i Image) Remote() bool {
	return remotePattern.MatchString(i.Path)
}

// Get returns an absolute local path, fetching remote sources first.
func (i Image) Get(ctx context.Context, fetcher ResourceFetcher) (string, error) {
	if !i.Remote() {
		return filepath.Abs(i.Path)
	}
	if fetcher == nil {
		return "", ErrNoFetcher
	}

	return fetcher.Fetch(ctx, i.Path, i.Headers)
}

// Base64 returns the resolved file encoded as standard base64.
func (i Image) Base64(ctx context.Context, fetcher ResourceFetcher) (string, error) {
	path, err := i.Get(ctx, fetcher)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// AddRandomNoise composites a semi-transparent noise patch onto the top-left
// corner and returns a new image stored in cache.
func (i Image) AddRandomNoise(ctx context.Context, fetcher ResourceFetcher, cache *resource.Cache) (Image, error) {
	path, err := i.Get(ctx, fetcher)
	if err != nil {
		return Image{}, err
	}

	src, err := imaging.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("open image: %w", err)
	}

	patch := image.NewNRGBA(image.Rect(0, 0, noisePatchSize, noisePatchSize))
	for x := range noisePatchSize {
		for y := range noisePatchSize {
			patch.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x), A: uint8(rand.IntN(2))})
		}
	}

	return NewImageFromBitmap(imaging.Overlay(src, patch, image.Pt(0, 0), 1.0), cache)
}
