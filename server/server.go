// Package server - HTTP API that fuses drink detections from several cameras.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-multiview/config"
	"github.com/nvr-ai/go-multiview/fusion"
	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/report"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Server serves the fusion engine over HTTP.
type Server struct {
	engine *fusion.Engine
	config config.ServerConfig
	logger *zap.Logger
}

// New creates a server.
//
// Arguments:
//   - engine: The fusion engine. /process_drink needs it to have a detector.
//   - cfg: The server settings; Cameras lists the accepted image keys.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Server: The server.
func New(engine *fusion.Engine, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, config: cfg, logger: logger}
}

// SetupRouter returns the gin engine with every route registered.
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/healthz", s.Health)
	r.POST("/process_drink", s.ProcessDrink)
	r.POST("/fuse", s.Fuse)

	return r
}

// Health reports liveness and the active strategy.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"strategy": s.engine.Strategy(),
		"cameras":  s.config.Cameras,
	})
}

// ProcessDrink decodes one base64 image per configured camera key, runs
// detection and fusion, and returns the bill. Missing or undecodable images
// drop that camera only.
func (s *Server) ProcessDrink(c *gin.Context) {
	if s.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	}

	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: expected a JSON object of base64 images"})
		return
	}

	log := s.requestLogger(c)
	var (
		frames []fusion.Frame
		errs   error
		known  int
	)
	for _, camera := range s.config.Cameras {
		encoded, ok := req[camera]
		if !ok || encoded == "" {
			frames = append(frames, fusion.Frame{Camera: camera})
			continue
		}
		known++
		img, err := images.DecodeBase64(encoded)
		if err != nil {
			errs = multierr.Append(errs, &fusion.InputValidationError{Camera: camera, Reason: "undecodable image", Err: err})
			log.Warn("dropping camera", zap.String("camera", camera), zap.Error(err))
			continue
		}
		frames = append(frames, fusion.Frame{Camera: camera, Image: img})
	}
	if known == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image for any known camera", "cameras": s.config.Cameras})
		return
	}

	out, err := s.engine.Run(c.Request.Context(), frames)
	if out == nil {
		log.Error("fusion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fusion failed"})
		return
	}
	s.respond(c, out, multierr.Append(errs, err))
}

// FuseRequest carries pre-computed per-camera counts.
type FuseRequest struct {
	Cameras map[string]fusion.Counts `json:"cameras"`
}

// Fuse fuses per-camera counts with the max heuristic.
func (s *Server) Fuse(c *gin.Context) {
	if s.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	}

	var req FuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	out, err := s.engine.FuseCounts(req.Cameras)
	s.respond(c, out, err)
}

func (s *Server) respond(c *gin.Context, out *fusion.Outcome, errs error) {
	resp := report.NewResponse(out, s.engine.Reserved(), errs)
	resp.RequestID = c.GetString("request_id")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.requestLogger(c).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) requestLogger(c *gin.Context) *zap.Logger {
	return s.logger.With(zap.String("request_id", c.GetString("request_id")))
}
