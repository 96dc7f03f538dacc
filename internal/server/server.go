// Package server hosts the signaling relay and the cloud-drop HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rudransh-shrivastava/privosend/internal/blob"
	"github.com/rudransh-shrivastava/privosend/internal/ratelimit"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/store"
)

const (
	maxFileSize       = 100 << 20
	maxSenderName     = 50
	maxMultipartMem   = 32 << 20
	maintenancePeriod = 10 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

type Options struct {
	Environment    string
	AllowedOrigins []string

	Hub      *relay.Hub
	Sessions store.Registry
	Blobs    blob.Store
	// SweepBlobs, when set, is called periodically to drop expired blobs.
	SweepBlobs func() int

	UploadLimiter   *ratelimit.Limiter
	DownloadLimiter *ratelimit.Limiter
	Logger          *slog.Logger
}

type Server struct {
	opts   Options
	router *gin.Engine
	logger *slog.Logger
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = relay.NewHub(opts.Logger)
	}
	if opts.Sessions == nil {
		opts.Sessions = store.NewMemoryRegistry(store.Limits{})
	}
	if opts.Blobs == nil {
		opts.Blobs = blob.NewMemory(store.DefaultTTL)
	}
	if opts.UploadLimiter == nil {
		opts.UploadLimiter = ratelimit.New(ratelimit.DefaultUploadLimit, ratelimit.DefaultWindow)
	}
	if opts.DownloadLimiter == nil {
		opts.DownloadLimiter = ratelimit.New(ratelimit.DefaultDownloadLimit, ratelimit.DefaultWindow)
	}

	if opts.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMem
	router.Use(gin.Recovery(), RequestLogger(s.logger), OriginFilter(s.opts.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	signaling := relay.NewServer(s.opts.Hub, s.logger)
	router.GET("/ws/:code", signaling.HandleSignaling)

	api := router.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
		api.GET("/validate", s.handleValidate)
		api.GET("/download", s.handleDownload)
	}
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully. Expired
// sessions, blobs and rate limit windows are swept while it runs.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go store.NewJanitor(s.opts.Sessions, store.DefaultCleanupInterval, s.logger).Run(ctx)
	go s.maintain(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenancePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.opts.UploadLimiter.Cleanup()
			s.opts.DownloadLimiter.Cleanup()
			if s.opts.SweepBlobs != nil {
				if n := s.opts.SweepBlobs(); n > 0 {
					s.logger.Debug("Swept expired blobs", "count", n)
				}
			}
		}
	}
}
