package control

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fnatlb/lipalloc/pkg/auditdb"
	"github.com/fnatlb/lipalloc/pkg/lipalloc"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/mod/semver"
)

// resolveService looks up the service named by w, returning NoService on a
// miss; a miss is neither logged nor audited here. The match filter is parsed (but not evaluated against
// anything; this module has no connection table to filter) before lookup,
// since a malformed filter must fail with Invalid rather than silently
// participate in map-key equality (SPEC_FULL.md §6).
func (s *Server) resolveService(r *http.Request, w serviceKeyWire) (*lipalloc.Service, lipalloc.Status) {
	if !validMatch(w.Match) {
		return nil, lipalloc.Invalid
	}
	svc, ok := s.Services.Lookup(w.key())
	if !ok {
		return nil, lipalloc.NoService
	}
	return svc, lipalloc.Ok
}

// validMatch reports whether match is syntactically valid: empty, or a
// comma-separated list of non-empty key=value pairs (e.g. "iif=eth0,oif=eth1"),
// the minimal shape of dpvs's virtual-service match-rule filter.
func validMatch(match string) bool {
	if match == "" {
		return true
	}
	for _, pair := range strings.Split(match, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return false
		}
	}
	return true
}

func (s *Server) audit(r *http.Request, op string, key serviceKeyWire, addr string, status lipalloc.Status) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(r.Context(), auditdb.Entry{
		Op:     op,
		Proto:  key.Proto,
		VAddr:  key.VAddr.String(),
		VPort:  key.VPort,
		Addr:   addr,
		Status: string(status),
	}); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("component", "auditdb").Msg("write audit entry")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// handleLaddrAdd implements POST /v1/laddr (SPEC_FULL.md §4.4/§6).
func (s *Server) handleLaddrAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
		return
	}
	var req laddrAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, httpStatus(lipalloc.Invalid), statusReply{lipalloc.Invalid})
		return
	}

	svc, st := s.resolveService(r, req.Service)
	if st != lipalloc.Ok {
		writeJSON(w, httpStatus(st), statusReply{st})
		return
	}

	st = lipalloc.LaddrAdd(svc, lipalloc.Family(req.Family), req.Addr, req.Ifname)
	metricsControlOp("add")
	s.audit(r, "add", req.Service, req.Addr.String(), st)
	writeJSON(w, httpStatus(st), statusReply{st})
}

// handleLaddrDel implements DELETE /v1/laddr.
func (s *Server) handleLaddrDel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
		return
	}
	var req laddrDelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, httpStatus(lipalloc.Invalid), statusReply{lipalloc.Invalid})
		return
	}

	svc, st := s.resolveService(r, req.Service)
	if st != lipalloc.Ok {
		writeJSON(w, httpStatus(st), statusReply{st})
		return
	}

	st = lipalloc.LaddrDel(svc, lipalloc.Family(req.Family), req.Addr)
	metricsControlOp("del")
	s.audit(r, "del", req.Service, req.Addr.String(), st)
	writeJSON(w, httpStatus(st), statusReply{st})
}

// handleLaddrFlush implements POST /v1/laddr/flush.
func (s *Server) handleLaddrFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
		return
	}
	var req laddrFlushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, httpStatus(lipalloc.Invalid), statusReply{lipalloc.Invalid})
		return
	}

	svc, st := s.resolveService(r, req.Service)
	if st != lipalloc.Ok {
		writeJSON(w, httpStatus(st), statusReply{st})
		return
	}

	st = lipalloc.LaddrFlush(svc)
	metricsControlOp("flush")
	s.audit(r, "flush", req.Service, "", st)
	writeJSON(w, httpStatus(st), statusReply{st})
}

// handleLaddrGetAll implements GET /v1/laddr.
func (s *Server) handleLaddrGetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
		return
	}
	var req laddrGetAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, httpStatus(lipalloc.Invalid), statusReply{lipalloc.Invalid})
		return
	}

	svc, st := s.resolveService(r, req.Service)
	if st != lipalloc.Ok {
		writeJSON(w, httpStatus(st), laddrGetAllReply{Service: req.Service, Status: st})
		return
	}

	entries := lipalloc.LaddrGetAll(svc)
	wire := make([]laddrEntryWire, len(entries))
	for i, e := range entries {
		wire[i] = laddrEntryWire{
			Family: uint8(e.Family),
			Addr:   e.Addr,
			NConns: e.NConns,
		}
	}
	metricsControlOp("getall")
	writeJSON(w, http.StatusOK, laddrGetAllReply{Service: req.Service, Status: lipalloc.Ok, Entries: wire})
}

// handleReload implements POST /v1/reload, gating on the protocol version
// before any reconciliation runs (SPEC_FULL.md §10 S8).
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, httpStatus(lipalloc.NotSupported), statusReply{lipalloc.NotSupported})
		return
	}
	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, httpStatus(lipalloc.Invalid), reloadReply{Status: lipalloc.Invalid})
		return
	}

	v := "v" + strings.TrimPrefix(req.ProtocolVersion, "v")
	if !semver.IsValid(v) || semver.Compare(v, s.MaxProtocolVersion) > 0 {
		writeJSON(w, httpStatus(lipalloc.Invalid), reloadReply{Status: lipalloc.Invalid})
		return
	}

	svc, st := s.resolveService(r, req.Service)
	if st != lipalloc.Ok {
		writeJSON(w, httpStatus(st), reloadReply{Status: st})
		return
	}

	oldRanges := make([]lipalloc.RangeEntry, len(req.OldRanges))
	for i, e := range req.OldRanges {
		oldRanges[i] = e.entry()
	}
	newRanges := make([]lipalloc.RangeEntry, len(req.NewRanges))
	for i, e := range req.NewRanges {
		newRanges[i] = e.entry()
	}

	_, summary := lipalloc.ReconcileRanges(svc, oldRanges, newRanges)
	metricsControlOp("reload")
	s.audit(r, "reload", req.Service, "", lipalloc.Ok)

	writeJSON(w, http.StatusOK, reloadReply{
		Status:    lipalloc.Ok,
		Added:     summary.Added,
		Pending:   summary.Pending,
		Deleted:   summary.Deleted,
		Preserved: summary.Preserved,
	})
}

// handleHealthz implements GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleMetrics implements GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	lipalloc.WritePrometheus(w)
	writePrometheus(w)
}
