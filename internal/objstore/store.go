// Package objstore is a small local object store: blob bytes live on an
// afero filesystem and per-object metadata lives in SQLite. It serves the
// carousel's media and manifest both to the engine and, over HTTP, to the
// display surface.
package objstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned for objects that do not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidPath is returned for empty, absolute or escaping paths.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrTooLarge is returned when an object exceeds the caller's limit.
	ErrTooLarge = errors.New("object too large")
)

// Metadata describes a stored object.
type Metadata struct {
	Path         string    `json:"path"`
	ContentType  string    `json:"contentType"`
	CacheControl string    `json:"cacheControl,omitempty"`
	Size         int64     `json:"size"`
	Generation   string    `json:"generation,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WriteOptions sets the metadata stored with a blob.
type WriteOptions struct {
	ContentType  string
	CacheControl string
}

// Local stores blobs under the root of fs.
type Local struct {
	fs         afero.Fs
	db         *sql.DB
	publicBase string
	now        func() time.Time
}

// NewLocal returns a store writing blobs to fs and metadata to db.
// publicBase is the URL prefix objects are served under, for example
// "http://localhost:8080/objects".
func NewLocal(fs afero.Fs, db *sql.DB, publicBase string) *Local {
	return &Local{
		fs:         fs,
		db:         db,
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}
}

// NewOsFs roots an OS filesystem at dir, creating it if needed.
func NewOsFs(dir string) (afero.Fs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("error: cannot create object directory: %w", err)
	}
	return afero.NewBasePathFs(afero.NewOsFs(), dir), nil
}

// cleanPath validates an object path and returns it in canonical form.
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return path.Clean(p), nil
}

// ReadBlob returns the bytes stored at p.
func (s *Local) ReadBlob(ctx context.Context, p string) ([]byte, error) {
	r, err := s.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadBlobLimit returns the bytes stored at p, or ErrTooLarge when there
// are more than limit of them. At most limit+1 bytes are read.
func (s *Local) ReadBlobLimit(ctx context.Context, p string, limit int64) ([]byte, error) {
	r, err := s.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("error: reading %s: %w", p, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, p, limit)
	}
	return data, nil
}

// Open returns a reader for the object at p.
func (s *Local) Open(ctx context.Context, p string) (afero.File, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("error: opening %s: %w", p, err)
	}
	return f, nil
}

// WriteBlob atomically replaces the object at p. Readers see either the old
// bytes or the new ones, never a partial write.
func (s *Local) WriteBlob(ctx context.Context, p string, data []byte, opts WriteOptions) (Metadata, error) {
	p, err := cleanPath(p)
	if err != nil {
		return Metadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	dir := path.Dir(p)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return Metadata{}, fmt.Errorf("error: creating %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".upload-*")
	if err != nil {
		return Metadata{}, fmt.Errorf("error: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = s.fs.Remove(tmpName)
		return Metadata{}, fmt.Errorf("error: writing %s: %w", p, werr)
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		_ = s.fs.Remove(tmpName)
		return Metadata{}, fmt.Errorf("error: committing %s: %w", p, err)
	}

	md := Metadata{
		Path:         p,
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		Size:         int64(len(data)),
		Generation:   uuid.NewString(),
		UpdatedAt:    s.now().UTC(),
	}
	if md.ContentType == "" {
		md.ContentType = guessType(p)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO objects (path, content_type, cache_control, size, generation, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    content_type = excluded.content_type,
    cache_control = excluded.cache_control,
    size = excluded.size,
    generation = excluded.generation,
    updated_at = excluded.updated_at`,
		md.Path, md.ContentType, md.CacheControl, md.Size, md.Generation, md.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Metadata{}, fmt.Errorf("error: recording metadata for %s: %w", p, err)
	}
	return md, nil
}

// DeleteBlob removes the object at p. Deleting a missing object is not an
// error.
func (s *Local) DeleteBlob(ctx context.Context, p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error: deleting %s: %w", p, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE path = ?`, p); err != nil {
		return fmt.Errorf("error: deleting metadata for %s: %w", p, err)
	}
	return nil
}

// Stat returns the metadata of the object at p. Files copied into the
// store directly have no metadata row; their type is guessed from the
// extension.
func (s *Local) Stat(ctx context.Context, p string) (Metadata, error) {
	p, err := cleanPath(p)
	if err != nil {
		return Metadata{}, err
	}
	info, err := s.fs.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("error: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	md := Metadata{Path: p}
	var updated string
	err = s.db.QueryRowContext(ctx, `
SELECT content_type, cache_control, size, generation, updated_at FROM objects WHERE path = ?`, p).
		Scan(&md.ContentType, &md.CacheControl, &md.Size, &md.Generation, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		md.ContentType = guessType(p)
		md.Size = info.Size()
		md.UpdatedAt = info.ModTime().UTC()
	case err != nil:
		return Metadata{}, fmt.Errorf("error: reading metadata for %s: %w", p, err)
	default:
		md.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return Metadata{}, fmt.Errorf("error: bad timestamp for %s: %w", p, err)
		}
	}
	return md, nil
}

// PublicURL returns the URL the display loads p from. It fails with
// ErrNotFound when the object does not exist.
func (s *Local) PublicURL(ctx context.Context, p string) (string, error) {
	md, err := s.Stat(ctx, p)
	if err != nil {
		return "", err
	}
	segs := strings.Split(md.Path, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + strings.Join(segs, "/"), nil
}

// mediaTypes covers extensions the platform mime table may not know.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func guessType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
