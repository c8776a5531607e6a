/*
Package server serves platform identity extraction over HTTP.

Endpoints:
  - POST /v1/identity: extract the identity of a single quote. The body is the raw quote,
    or the hex encoded quote if the Content-Type is text/plain.
  - POST /v1/identities: extract the identities of multiple hex encoded quotes.
  - GET /metrics: Prometheus metrics.
  - GET /healthz: liveness probe.
*/
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgelesssys/go-pckid/constants"
	"github.com/edgelesssys/go-pckid/identity"
	"github.com/edgelesssys/go-pckid/identity/types"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second

	// maxBatchSize is the maximum number of quotes in a single batch request.
	maxBatchSize = 64
)

type extractor interface {
	Extract(rawQuote []byte) (types.PlatformIdentity, error)
	ExtractBatch(ctx context.Context, quotes [][]byte) ([]identity.Result, error)
}

// Server is the HTTP front end of an identity.Extractor.
type Server struct {
	log       *zap.Logger
	extractor extractor
	metrics   http.Handler
	port      int
}

// New returns a new Server listening on port once run.
func New(log *zap.Logger, extractor *identity.Extractor, metrics http.Handler, port int) *Server {
	return &Server{
		log:       log,
		extractor: extractor,
		metrics:   metrics,
		port:      port,
	}
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/identity", s.handleIdentity)
	mux.HandleFunc("POST /v1/identities", s.handleIdentities)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	s.log.Info("Serving platform identity API", zap.String("address", listener.Addr().String()))

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type batchRequest struct {
	Quotes []string `json:"quotes"`
}

type batchResult struct {
	Identity *types.PlatformIdentity `json:"identity,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Kind     string                  `json:"kind,omitempty"`
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxQuoteSize))
	if err != nil {
		s.writeBodyError(w, err)
		return
	}

	rawQuote := body
	if isText(r.Header.Get("Content-Type")) {
		rawQuote, err = hex.DecodeString(strings.TrimSpace(string(body)))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decoding hex quote: %s", err)})
			return
		}
	}

	platformIdentity, err := s.extractor.Extract(rawQuote)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: types.ErrorKind(err)})
		return
	}
	s.writeJSON(w, http.StatusOK, platformIdentity)
}

func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	// hex doubles the size of every quote
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*maxBatchSize*constants.MaxQuoteSize)).Decode(&req); err != nil {
		s.writeBodyError(w, err)
		return
	}
	if len(req.Quotes) > maxBatchSize {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("batch holds %d quotes, at most %d are allowed", len(req.Quotes), maxBatchSize)})
		return
	}

	quotes := make([][]byte, len(req.Quotes))
	for i, rawQuote := range req.Quotes {
		quote, err := hex.DecodeString(rawQuote)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decoding hex quote %d: %s", i, err)})
			return
		}
		quotes[i] = quote
	}

	results, err := s.extractor.ExtractBatch(r.Context(), quotes)
	if err != nil {
		s.log.Info("Batch request canceled", zap.Error(err))
		return
	}

	response := make([]batchResult, len(results))
	for i, result := range results {
		if result.Err != nil {
			response[i] = batchResult{Error: result.Err.Error(), Kind: types.ErrorKind(result.Err)}
			continue
		}
		response[i] = batchResult{Identity: &result.Identity}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit)})
		return
	}
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("reading request: %s", err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", zap.Error(err))
	}
}

func isText(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/plain"
}
