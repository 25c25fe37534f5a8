package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/fnatlb/lipalloc/pkg/auditdb"
	"github.com/fnatlb/lipalloc/pkg/lipalloc"
	"github.com/fnatlb/lipalloc/pkg/sapool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func resetGlobalConfig(t *testing.T) {
	t.Helper()
	lipalloc.Init(lipalloc.Config{Mode: lipalloc.PortLcoreMapping, EnabledCoreMask: 0x1})
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	resetGlobalConfig(t)

	db, err := auditdb.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open auditdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, tgt, err := db.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	ifaces := lipalloc.NewIfaceTable()
	ifaces.Register("eth0")

	key := lipalloc.ServiceKey{Family: lipalloc.FamilyV4, Proto: lipalloc.ProtoTCP, VAddr: netip.MustParseAddr("203.0.113.1"), VPort: 80}
	svc := lipalloc.NewService(key, lipalloc.SchedulerOther, sapool.NewBitmapPool(1024, 65535), ifaces, nil)

	services := NewServiceRegistry()
	services.Register(key, svc)

	s := NewServer(&Server{
		Logger:   zerolog.Nop(),
		Services: services,
		Audit:    db,
	})

	return s, httptest.NewServer(s.handler)
}

func serviceWire() serviceKeyWire {
	return serviceKeyWire{Family: uint8(lipalloc.FamilyV4), Proto: uint8(lipalloc.ProtoTCP), VAddr: netip.MustParseAddr("203.0.113.1"), VPort: 80}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

// S7 — control-plane round trip.
func TestControlPlaneRoundTrip(t *testing.T) {
	s, ts := newTestServer(t)
	defer ts.Close()

	addReq := laddrAddRequest{Service: serviceWire(), Family: uint8(lipalloc.FamilyV4), Addr: netip.MustParseAddr("10.0.0.1"), Ifname: "eth0"}
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/laddr", addReq)
	var addRep statusReply
	json.NewDecoder(resp.Body).Decode(&addRep)
	resp.Body.Close()
	if addRep.Status != lipalloc.Ok {
		t.Fatalf("add status = %v, want Ok", addRep.Status)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/laddr", laddrGetAllRequest{Service: serviceWire()})
	var getRep laddrGetAllReply
	json.NewDecoder(resp.Body).Decode(&getRep)
	resp.Body.Close()
	if len(getRep.Entries) != 1 || getRep.Entries[0].NConns != 0 {
		t.Fatalf("unexpected getall reply: %+v", getRep)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/laddr/flush", laddrFlushRequest{Service: serviceWire()})
	var flushRep statusReply
	json.NewDecoder(resp.Body).Decode(&flushRep)
	resp.Body.Close()
	if flushRep.Status != lipalloc.Ok {
		t.Fatalf("flush status = %v, want Ok", flushRep.Status)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/laddr", laddrGetAllRequest{Service: serviceWire()})
	json.NewDecoder(resp.Body).Decode(&getRep)
	resp.Body.Close()
	if len(getRep.Entries) != 0 {
		t.Fatalf("pool not empty after flush: %+v", getRep)
	}

	n, err := s.Audit.CountByOp(context.Background(), "203.0.113.1", 80, "add")
	if err != nil {
		t.Fatalf("countByOp add: %v", err)
	}
	if n != 1 {
		t.Fatalf("audit add rows = %d, want 1", n)
	}
	n, err = s.Audit.CountByOp(context.Background(), "203.0.113.1", 80, "flush")
	if err != nil {
		t.Fatalf("countByOp flush: %v", err)
	}
	if n != 1 {
		t.Fatalf("audit flush rows = %d, want 1", n)
	}
}

// A malformed match filter is rejected before service lookup runs.
func TestLaddrGetAllRejectsBadMatch(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	w := serviceWire()
	w.Match = "iif="
	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/laddr", laddrGetAllRequest{Service: w})
	var rep laddrGetAllReply
	json.NewDecoder(resp.Body).Decode(&rep)
	resp.Body.Close()
	if rep.Status != lipalloc.Invalid {
		t.Fatalf("bad match filter: status = %v, want Invalid", rep.Status)
	}
}

// S8 — protocol version gate.
func TestReloadRejectsBadProtocolVersion(t *testing.T) {
	_, ts := newTestServer(t)
	defer ts.Close()

	for _, v := range []string{"not-a-version", "v99.0.0"} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/v1/reload", reloadRequest{
			Service:         serviceWire(),
			ProtocolVersion: v,
		})
		var rep reloadReply
		json.NewDecoder(resp.Body).Decode(&rep)
		resp.Body.Close()
		if rep.Status != lipalloc.Invalid {
			t.Fatalf("protocol version %q: status = %v, want Invalid", v, rep.Status)
		}
	}
}
