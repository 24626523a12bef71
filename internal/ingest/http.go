package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/chrissnell/wxdatadog/internal/health"
	"github.com/chrissnell/wxdatadog/internal/types"
	"github.com/chrissnell/wxdatadog/pkg/config"
	"github.com/chrissnell/wxdatadog/pkg/responseformat"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPServer accepts weewx packets posted by the weewx side of the extension
type HTTPServer struct {
	cfg       config.HTTPIngestData
	handler   Handler
	health    *health.Manager
	metrics   http.Handler
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

type queuedResponse struct {
	Status   string `json:"status"`
	Type     string `json:"type"`
	DateTime int64  `json:"dateTime"`
	Fields   int    `json:"fields"`
}

type healthResponse struct {
	Healthy    bool                     `json:"healthy"`
	Components map[string]health.Status `json:"components"`
}

// NewHTTPServer creates the ingest server. metrics may be nil.
func NewHTTPServer(cfg config.HTTPIngestData, handler Handler, hm *health.Manager, metrics http.Handler, logger *zap.SugaredLogger) *HTTPServer {
	return &HTTPServer{
		cfg:       cfg,
		handler:   handler,
		health:    hm,
		metrics:   metrics,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}
}

// Router returns the HTTP routes
func (s *HTTPServer) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/v1/loop", s.recordHandler(types.LoopPacket)).Methods(http.MethodPost)
	router.HandleFunc("/v1/archive", s.recordHandler(types.ArchiveRecord)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	return router
}

// Run serves until ctx is cancelled
func (s *HTTPServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.serve(ctx, lis)
}

func (s *HTTPServer) serve(ctx context.Context, lis net.Listener) error {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger.Desugar())),
		handlers.PrintRecoveryStack(true),
	)

	server := &http.Server{
		Handler:           recovery(s.Router()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if s.cfg.Cert != "" && s.cfg.Key != "" {
			s.logger.Infof("starting HTTPS ingest server on %s", lis.Addr())
			errc <- server.ServeTLS(lis, s.cfg.Cert, s.cfg.Key)
			return
		}
		s.logger.Infof("starting HTTP ingest server on %s", lis.Addr())
		errc <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP ingest server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP ingest server: %w", err)
	}
}

func (s *HTTPServer) recordHandler(t types.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body := http.MaxBytesReader(w, req.Body, MaxPacketBytes)

		var packet map[string]any
		if err := s.formatter.DecodeBody(req, body, &packet); err != nil {
			s.logger.Debugf("rejecting %s packet from %s: %v", t, req.RemoteAddr, err)
			s.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
			return
		}

		// Drain anything after the first document so keep-alive works.
		io.Copy(io.Discard, body)

		rec, err := dispatch(s.handler, t, packet)
		if err != nil {
			s.logger.Debugf("rejecting %s packet from %s: %v", t, req.RemoteAddr, err)
			s.formatter.WriteError(w, req, http.StatusUnprocessableEntity, err.Error())
			return
		}

		s.formatter.WriteResponse(w, req, http.StatusAccepted, queuedResponse{
			Status:   "queued",
			Type:     string(t),
			DateTime: rec.Timestamp,
			Fields:   len(rec.Fields),
		})
	}
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, req *http.Request) {
	resp := healthResponse{Healthy: true, Components: map[string]health.Status{}}
	if s.health != nil {
		resp.Healthy = s.health.Healthy()
		resp.Components = s.health.All()
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.formatter.WriteResponse(w, req, status, resp)
}
