// Package preview serves on-demand damage overlays over HTTP.
package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/time/rate"

	"github.com/sells-group/damage-vis/internal/dataset"
	"github.com/sells-group/damage-vis/internal/label"
	"github.com/sells-group/damage-vis/internal/overlay"
)

// maxWidth bounds the ?width= downscale parameter.
const maxWidth = 4096

// Options configures a Server.
type Options struct {
	LineWidth      int
	CacheSize      int
	CacheTTL       time.Duration
	RatePerSecond  float64
	Burst          int
	AllowedOrigins []string
}

// Server renders label overlays for one dataset split on request.
type Server struct {
	layout    dataset.Layout
	renderer  *overlay.Renderer
	lineWidth int
	cache     *RenderCache
	limiter   *rate.Limiter
	origins   []string
}

// NewServer creates a preview server over layout.
func NewServer(layout dataset.Layout, renderer *overlay.Renderer, opts Options) *Server {
	if opts.LineWidth < 1 {
		opts.LineWidth = 2
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		layout:    layout,
		renderer:  renderer,
		lineWidth: opts.LineWidth,
		cache:     NewRenderCache(opts.CacheSize, opts.CacheTTL),
		limiter:   rate.NewLimiter(limit, opts.Burst),
		origins:   opts.AllowedOrigins,
	}
}

// Cache returns the server's render cache.
func (s *Server) Cache() *RenderCache {
	return s.cache
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/labels", s.handleLabels)
	r.Get("/stats", s.handleStats)
	r.With(s.rateLimit).Get("/render/{file}", s.handleRender)
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type labelEntry struct {
	Stem     string `json:"stem"`
	HasImage bool   `json:"has_image"`
}

func (s *Server) handleLabels(w http.ResponseWriter, _ *http.Request) {
	names, err := dataset.ListLabels(s.layout.Labels)
	if err != nil {
		zap.L().Error("preview: list labels failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cannot list labels")
		return
	}

	out := make([]labelEntry, 0, len(names))
	for _, p := range s.layout.Pairs(names) {
		out = append(out, labelEntry{Stem: p.Stem, HasImage: p.HasImage()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": out, "count": len(out)})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	stem, ok := strings.CutSuffix(file, ".png")
	if !ok || !validStem(stem) {
		writeError(w, http.StatusBadRequest, "invalid render path")
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxWidth {
			writeError(w, http.StatusBadRequest, "invalid width")
			return
		}
		width = n
	}

	pair := s.layout.Pair(stem)
	version, status, err := sourceVersion(pair)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	if s.cache.Refresh(stem, version) {
		zap.L().Debug("preview: source changed, dropped cached renders", zap.String("stem", stem))
	}

	if cached := s.cache.Get(stem, width); cached != nil {
		writePNG(w, cached, "hit")
		return
	}

	data, status, err := s.render(pair, width)
	if err != nil {
		if status >= http.StatusInternalServerError {
			zap.L().Error("preview: render failed", zap.String("stem", stem), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	s.cache.Put(stem, width, data)
	writePNG(w, data, "miss")
}

// sourceVersion identifies the current contents of a pair's label and image by
// modification time and size.
func sourceVersion(pair dataset.Pair) (string, int, error) {
	li, err := os.Stat(pair.Label)
	if err != nil {
		return "", http.StatusNotFound, eris.Errorf("label %s not found", pair.Stem)
	}
	ii, err := os.Stat(pair.Image)
	if err != nil || ii.IsDir() {
		return "", http.StatusNotFound, eris.Errorf("image for %s not found", pair.Stem)
	}
	return fmt.Sprintf("%d:%d/%d:%d",
		li.ModTime().UnixNano(), li.Size(), ii.ModTime().UnixNano(), ii.Size()), http.StatusOK, nil
}

// render produces the encoded PNG for one pair along with the HTTP status to report on
// failure.
func (s *Server) render(pair dataset.Pair, width int) ([]byte, int, error) {
	rec, err := label.Load(pair.Label)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	geoms, err := rec.Geometries()
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	base, err := dataset.LoadImage(pair.Image)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	var out image.Image
	out, err = s.renderer.Render(base, geoms, s.lineWidth)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if width > 0 && width < out.Bounds().Dx() {
		out = downscale(out, width)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, http.StatusInternalServerError, eris.Wrap(err, "preview: encode png")
	}
	return buf.Bytes(), http.StatusOK, nil
}

// downscale resizes src to width pixels wide, preserving the aspect ratio.
func downscale(src image.Image, width int) *image.RGBA {
	b := src.Bounds()
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func validStem(stem string) bool {
	if stem == "" || stem == "." || stem == ".." {
		return false
	}
	return !strings.ContainsAny(stem, `/\`)
}

func writePNG(w http.ResponseWriter, data []byte, cache string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cache", cache)
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
