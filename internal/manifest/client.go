package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infoboard/infoboard/internal/objstore"
	"github.com/infoboard/infoboard/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefPath is where the manifest lives in the object store.
const DefPath = "carousel/manifest.json"

// MaxSize bounds how large a stored manifest may be.
const MaxSize = 256 << 10

var (
	// ErrNotFound means no manifest has been written yet.
	ErrNotFound = errors.New("manifest not found")
	// ErrInvalidManifest means the stored manifest is empty, oversized or
	// not a manifest. It is never repaired automatically.
	ErrInvalidManifest = errors.New("invalid manifest")
)

var (
	tracer = otel.Tracer("github.com/infoboard/infoboard/internal/manifest")
	// timeNow stamps default manifests; tests replace it.
	timeNow = time.Now
)

// Store is the part of the object store the client uses.
type Store interface {
	ReadBlobLimit(ctx context.Context, path string, limit int64) ([]byte, error)
	WriteBlob(ctx context.Context, path string, data []byte, opts objstore.WriteOptions) (objstore.Metadata, error)
}

// ReadOptions controls Read.
type ReadOptions struct {
	// FallbackToDefault returns an in-memory default manifest when none is
	// stored, instead of ErrNotFound. Nothing is written either way.
	FallbackToDefault bool
}

// Client reads and writes the manifest at a fixed path.
type Client struct {
	store   Store
	path    string
	boardMs int
	log     logger.Logger
}

// NewClient returns a Client for the manifest at path. boardMs is the board
// dwell used for default manifests.
func NewClient(store Store, path string, boardMs int, l logger.Logger) *Client {
	if path == "" {
		path = DefPath
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Client{store: store, path: path, boardMs: boardMs, log: l}
}

// Path returns the object path of the manifest.
func (c *Client) Path() string { return c.path }

// Read fetches and normalizes the manifest. It never writes.
func (c *Client) Read(ctx context.Context, opts ReadOptions) (*Manifest, error) {
	ctx, span := tracer.Start(ctx, "manifest.Read", trace.WithAttributes(
		attribute.String("manifest.path", c.path),
	))
	defer span.End()

	data, err := c.store.ReadBlobLimit(ctx, c.path, MaxSize)
	switch {
	case errors.Is(err, objstore.ErrNotFound):
		if opts.FallbackToDefault {
			c.log.Info("manifest: %s not found, using defaults", c.path)
			span.SetAttributes(attribute.Bool("manifest.default", true))
			return Default(c.boardMs, timeNow()), nil
		}
		return nil, c.fail(span, fmt.Errorf("%w: %s", ErrNotFound, c.path))
	case errors.Is(err, objstore.ErrTooLarge):
		return nil, c.fail(span, fmt.Errorf("%w: %v", ErrInvalidManifest, err))
	case err != nil:
		return nil, c.fail(span, fmt.Errorf("error: reading manifest: %w", err))
	}
	m, err := Decode(data)
	if err != nil {
		return nil, c.fail(span, err)
	}
	span.SetAttributes(attribute.Int("manifest.slots", len(m.Slots)))
	return m, nil
}

// Write stores m as the manifest. Callers set m.UpdatedAt.
func (c *Client) Write(ctx context.Context, m *Manifest) error {
	ctx, span := tracer.Start(ctx, "manifest.Write", trace.WithAttributes(
		attribute.String("manifest.path", c.path),
	))
	defer span.End()

	data, err := Encode(m)
	if err != nil {
		return c.fail(span, fmt.Errorf("error: encoding manifest: %w", err))
	}
	_, err = c.store.WriteBlob(ctx, c.path, data, objstore.WriteOptions{
		ContentType:  "application/json",
		CacheControl: "no-cache",
	})
	if err != nil {
		return c.fail(span, fmt.Errorf("error: writing manifest: %w", err))
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
