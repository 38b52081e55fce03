// Package server exposes decoded assets and the live stream over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/quakeview/server/internal/cache"
	"github.com/quakeview/server/internal/config"
	"github.com/quakeview/server/internal/loader"
	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

// Asset kinds, also the cache key prefixes.
const (
	KindLevel   = "level"
	KindModel   = "model"
	KindBSP     = "bsp"
	KindTexture = "texture"
)

const streamPath = "/websock"

var (
	assetName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	hashName  = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// LoadRecorder receives one call per asset request.
type LoadRecorder interface {
	RecordLoad(kind, name string, d time.Duration, cached bool, err error)
}

// Deps are the collaborators the routes serve from. Stream, Styles and
// Loads may be nil.
type Deps struct {
	Session *loader.Session
	Cache   *cache.Cache
	Stream  http.Handler
	// Level is the level /hello describes.
	Level  string
	Styles func() []string
	Loads  LoadRecorder
	Logger *slog.Logger
}

// Server routes asset and stream requests.
type Server struct {
	cfg    config.HTTPConfig
	deps   Deps
	engine *gin.Engine
	logger *slog.Logger
}

// New builds the router.
func New(cfg config.HTTPConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, deps: deps, engine: gin.New(), logger: deps.Logger}

	s.engine.Use(gin.Recovery(), s.requestLog())
	if c, ok := corsConfig(cfg.CORSOrigins); ok {
		s.engine.Use(cors.New(c))
	}

	s.engine.GET("/hello", s.hello)
	s.engine.GET("/level/:name", s.level)
	s.engine.GET("/model/:name", s.model)
	s.engine.GET("/bsp/:name/:index", s.bspModel)
	s.engine.GET("/texture/:hash", s.texture)
	if deps.Stream != nil {
		s.engine.GET(streamPath, gin.WrapH(deps.Stream))
	}
	if cfg.StaticDir != "" {
		s.engine.Static("/static", cfg.StaticDir)
	}
	return s
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodHead},
		AllowHeaders: []string{"Origin", "Accept", "Accept-Encoding"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c, true
}

// Handler returns the HTTP handler. Responses other than the stream
// upgrade are gzip compressed when enabled and accepted by the client.
func (s *Server) Handler() http.Handler {
	if !s.cfg.Gzip {
		return s.engine
	}
	gz := gzhttp.GzipHandler(s.engine)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == streamPath {
			s.engine.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func statusFor(err error) int {
	if errors.Is(err, qdata.ErrLookup) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, kind, name string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Asset request failed", "kind", kind, "name", name, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) serve(c *gin.Context, kind, name string, load cache.Loader) {
	start := time.Now()
	data, src, err := s.deps.Cache.Get(kind, name, load)
	if s.deps.Loads != nil {
		s.deps.Loads.RecordLoad(kind, name, time.Since(start), src != cache.SourceLoad, err)
	}
	if err != nil {
		s.fail(c, kind, name, err)
		return
	}
	if src == cache.SourceStore && kind != KindTexture {
		s.restoreTextures(kind, name, data)
	}
	c.Header("X-Cache", string(src))
	c.Data(http.StatusOK, "application/json", data)
}

// restoreTextures registers the textures of a response produced by an
// earlier process, so their hashes resolve on /texture.
func (s *Server) restoreTextures(kind, name string, data []byte) {
	var embedded struct {
		Textures []*core.Texture `json:"textures"`
	}
	if err := json.Unmarshal(data, &embedded); err != nil {
		s.logger.Warn("Stored response is not valid JSON", "kind", kind, "name", name, "error", err)
		return
	}
	if n := s.deps.Session.Textures().Restore(embedded.Textures); n > 0 {
		s.logger.Debug("Restored textures", "kind", kind, "name", name, "count", n)
	}
}

func (s *Server) hello(c *gin.Context) {
	var styles []string
	if s.deps.Styles != nil {
		styles = s.deps.Styles()
	}
	h, err := s.deps.Session.Hello(s.deps.Level, styles)
	if err != nil {
		s.fail(c, "hello", s.deps.Level, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) level(c *gin.Context) {
	name := c.Param("name")
	if !assetName.MatchString(name) {
		s.fail(c, KindLevel, name, qdata.LookupErrorf("level %q", name))
		return
	}
	s.serve(c, KindLevel, name, func() (any, error) {
		return s.deps.Session.LoadLevel(name)
	})
}

func (s *Server) model(c *gin.Context) {
	name := strings.TrimSuffix(c.Param("name"), ".mdl")
	if !assetName.MatchString(name) {
		s.fail(c, KindModel, name, qdata.LookupErrorf("model %q", name))
		return
	}
	path := loader.ModelPath(name)
	s.serve(c, KindModel, path, func() (any, error) {
		return s.deps.Session.LoadModel(path)
	})
}

func (s *Server) bspModel(c *gin.Context) {
	name := c.Param("name")
	index, err := strconv.Atoi(c.Param("index"))
	if !assetName.MatchString(name) || err != nil {
		s.fail(c, KindBSP, name, qdata.LookupErrorf("level %q model %q", name, c.Param("index")))
		return
	}
	s.serve(c, KindBSP, fmt.Sprintf("%s:%d", name, index), func() (any, error) {
		return s.deps.Session.LoadBSPModel(name, index)
	})
}

func (s *Server) texture(c *gin.Context) {
	hash := c.Param("hash")
	if !hashName.MatchString(hash) {
		s.fail(c, KindTexture, hash, qdata.LookupErrorf("texture %q", hash))
		return
	}
	s.serve(c, KindTexture, hash, func() (any, error) {
		return s.deps.Session.LoadTexture(hash)
	})
}
