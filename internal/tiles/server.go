package tiles

import (
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hydrafloods/internal/logger"
)

// Server serves registered layers as PNG tiles. Other routes can be added to
// Engine before it starts serving.
type Server struct {
	registry *Registry
	engine   *gin.Engine
	logger   logger.Logger
}

func NewServer(registry *Registry, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		registry: registry,
		engine:   gin.New(),
		logger:   log,
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/map/:mapid/:z/:x/:y", s.handleTile)
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("TileServer", "request served", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
	}
}

func (s *Server) handleTile(c *gin.Context) {
	layer, err := s.registry.Lookup(c.Param("mapid"), c.Query("token"))
	switch {
	case errors.Is(err, ErrUnknownMap):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrBadToken):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	z, errZ := strconv.ParseUint(c.Param("z"), 10, 64)
	x, errX := strconv.ParseUint(c.Param("x"), 10, 64)
	y, errY := strconv.ParseUint(c.Param("y"), 10, 64)
	if errZ != nil || errX != nil || errY != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tile coordinates must be non-negative integers"})
		return
	}

	tile, err := layer.RenderTile(z, x, y)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		s.logger.Error("TileServer", err, map[string]interface{}{"mapid": c.Param("mapid")})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ListenAndServe blocks until the server stops; it returns nil after a
// Shutdown.
func (s *Server) ListenAndServe(srv *http.Server) error {
	srv.Handler = s.engine
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
