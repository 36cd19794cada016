// Package captcha issues and validates single-use image challenges
// backed by an expiring cache.
package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steambap/captcha"

	"admincore.org/internal/cache"
)

// Challenge render kinds accepted by Issue.
const (
	KindRaw    = "raw"
	KindBase64 = "base64"
)

const (
	keyPrefix = "verify:img:"

	// DefaultTTL bounds how long an unanswered challenge stays valid.
	DefaultTTL = 1800 * time.Second

	DefaultWidth  = 150
	DefaultHeight = 50

	// Digits only: letters are too easy to confuse in a small render.
	charPreset = "0123456789"
	textLength = 4
)

// Challenge is an issued CAPTCHA: an opaque identifier and the rendered
// PNG, base64-encoded (KindRaw) or wrapped as a data URL (KindBase64).
type Challenge struct {
	ID   string
	Data string
}

// Store generates challenges and validates answers. Answers are stored
// lowercase and compared case-insensitively; a successful validation
// consumes the challenge.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

// Option configures Store.
type Option func(*Store)

// WithTTL overrides the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStore constructs a Store on the given challenge cache.
func NewStore(c cache.Cache, opts ...Option) *Store {
	s := &Store{
		cache: c,
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue renders a new challenge and records its expected answer under a
// namespaced cache key. Non-positive dimensions fall back to defaults.
func (s *Store) Issue(ctx context.Context, kind string, width, height int) (*Challenge, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	img, err := captcha.New(width, height, func(o *captcha.Options) {
		o.CharPreset = charPreset
		o.TextLength = textLength
	})
	if err != nil {
		return nil, fmt.Errorf("captcha render: %w", err)
	}

	var buf bytes.Buffer
	if err := img.WriteImage(&buf); err != nil {
		return nil, fmt.Errorf("captcha encode: %w", err)
	}

	data := base64.StdEncoding.EncodeToString(buf.Bytes())
	if kind == KindBase64 {
		data = "data:image/png;base64," + data
	}

	id := uuid.NewString()
	if err := s.cache.Set(ctx, keyPrefix+id, strings.ToLower(img.Text), s.ttl); err != nil {
		return nil, fmt.Errorf("captcha store: %w", err)
	}

	return &Challenge{ID: id, Data: data}, nil
}

// Validate reports whether value answers the challenge. A match consumes
// the challenge atomically, so at most one caller can ever succeed; a
// mismatch leaves it in place until its TTL elapses.
func (s *Store) Validate(ctx context.Context, id, value string) (bool, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if id == "" || value == "" {
		return false, nil
	}
	ok, err := s.cache.CompareAndDelete(ctx, keyPrefix+id, value)
	if err != nil {
		return false, fmt.Errorf("captcha validate: %w", err)
	}
	return ok, nil
}
