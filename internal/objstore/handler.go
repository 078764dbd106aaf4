package objstore

import (
	"errors"
	"net/http"
	"strings"
)

// NewHandler serves objects read-only. Mount it with http.StripPrefix so
// the request path is the object path.
func NewHandler(s *Local) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p := strings.TrimPrefix(r.URL.Path, "/")
		md, err := s.Stat(r.Context(), p)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPath):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		f, err := s.Open(r.Context(), md.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		h := w.Header()
		h.Set("Content-Type", md.ContentType)
		if md.CacheControl != "" {
			h.Set("Cache-Control", md.CacheControl)
		}
		if md.Generation != "" {
			h.Set("ETag", `"`+md.Generation+`"`)
		}
		http.ServeContent(w, r, md.Path, md.UpdatedAt, f)
	})
}
