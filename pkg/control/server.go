// Package control implements the allocator's control-plane transport: an
// HTTP+JSON server exposing the Add/Delete/Flush/GetAll message set plus a
// reload trigger, metrics, and health endpoints (SPEC_FULL.md §6), in the
// idiom of the teacher's pkg/atlas server and pkg/api/api0 handler.
package control

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fnatlb/lipalloc/pkg/auditdb"
	"github.com/fnatlb/lipalloc/pkg/lipalloc"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/net/netutil"
)

// gzipThreshold is the minimum GET /v1/laddr response body size, in bytes,
// above which the reply is gzip-encoded (SPEC_FULL.md §9). Below it the
// framing overhead of gzip outweighs the savings.
const gzipThreshold = 1024

// Server is the control-plane HTTP server.
type Server struct {
	Logger zerolog.Logger

	Addr               string
	MaxConns           int
	MaxProtocolVersion string // semver, e.g. "v1.0.0"; reload requests above this are rejected

	Services *ServiceRegistry
	Audit    *auditdb.DB

	handler http.Handler
	srv     *http.Server
}

// NewServer builds the request router and middleware chain. Call
// ListenAndServe to start serving.
func NewServer(s *Server) *Server {
	if s.MaxProtocolVersion == "" {
		s.MaxProtocolVersion = "v1.0.0"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/laddr", s.dispatchLaddr)
	mux.HandleFunc("/v1/laddr/flush", s.handleLaddrFlush)
	mux.HandleFunc("/v1/reload", s.handleReload)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
	})

	var m middlewares
	m.Add(hlog.NewHandler(s.Logger.With().Str("component", "control").Logger()))
	m.Add(hlog.RequestIDHandler("rid", "X-Lipalloc-Request-Id"))
	m.Add(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		e := hlog.FromRequest(r).Info()
		if rid, ok := hlog.IDFromRequest(r); ok {
			e = e.Stringer("rid", rid)
		}
		e.
			Str("request_method", r.Method).
			Stringer("request_uri", r.URL).
			Int("response_status", status).
			Int("response_size", size).
			Dur("response_duration", duration).
			Msg("handle control request")
	}))

	s.handler = m.Then(mux)
	return s
}

// dispatchLaddr routes /v1/laddr by method, since Add and Get-all/Del share
// a path (SPEC_FULL.md §6). Only the GET reply is large enough to ever be
// worth gzip-encoding, so only it is wrapped.
func (s *Server) dispatchLaddr(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleLaddrAdd(w, r)
	case http.MethodDelete:
		s.handleLaddrDel(w, r)
	case http.MethodGet:
		gzipIfLarge(s.handleLaddrGetAll)(w, r)
	default:
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
	}
}

// gzipIfLarge buffers h's reply and gzip-encodes it, the same
// klauspost/compress/gzip usage the teacher applies to web assets, but only
// when the client accepts gzip and the body exceeds gzipThreshold
// (SPEC_FULL.md §9 scopes this to GET /v1/laddr specifically).
func gzipIfLarge(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsGzip(r) {
			h(w, r)
			return
		}

		rec := &bufferedResponseWriter{header: make(http.Header)}
		h(rec, r)

		for k, v := range rec.header {
			w.Header()[k] = v
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		if rec.buf.Len() <= gzipThreshold {
			w.WriteHeader(status)
			w.Write(rec.buf.Bytes())
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		gz := gzip.NewWriter(w)
		gz.Write(rec.buf.Bytes())
		gz.Close()
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept-Encoding") {
		if v == "gzip" || v == "*" {
			return true
		}
	}
	return false
}

// bufferedResponseWriter captures a handler's reply so gzipIfLarge can decide,
// after the fact, whether it was worth compressing.
type bufferedResponseWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (w *bufferedResponseWriter) Header() http.Header { return w.header }
func (w *bufferedResponseWriter) WriteHeader(code int) { w.status = code }
func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

// ListenAndServe starts the control-plane listener, bounding concurrent
// connections with netutil.LimitListener the way the host's ioctl/sockopt
// channel is naturally bounded by kernel resources (SPEC_FULL.md §9).
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr, err)
	}
	if s.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxConns)
	}

	s.srv = &http.Server{Handler: s.handler}
	return s.srv.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
