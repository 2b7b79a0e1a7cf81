// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/policy"
	"github.com/tomtom215/intentd/internal/registry"
	"github.com/tomtom215/intentd/internal/twopc"
	"github.com/tomtom215/intentd/internal/wal"
)

type testNode struct {
	srv   *httptest.Server
	store *wal.FileStore
	reg   *registry.MemoryRegistry
	audit *audit.Logger
}

type nodeOption func(*Dependencies, *MiddlewareConfig)

func withPeers(peers ...string) nodeOption {
	return func(d *Dependencies, _ *MiddlewareConfig) { d.Peers = peers }
}

func withRateLimit(n int) nodeOption {
	return func(_ *Dependencies, c *MiddlewareConfig) {
		c.RateLimitRequests = n
		c.RateLimitWindow = time.Minute
		c.RateLimitDisabled = false
	}
}

func withPolicy(store *policy.Store) nodeOption {
	return func(d *Dependencies, _ *MiddlewareConfig) { d.Policy = store }
}

func newTestNode(t *testing.T, opts ...nodeOption) *testNode {
	t.Helper()
	dir := t.TempDir()

	store, err := wal.Open(wal.Config{Path: filepath.Join(dir, "intent.wal"), ArchiveDir: filepath.Join(dir, "archive")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	n := &testNode{
		store: store,
		reg:   registry.NewMemoryRegistry(0),
		audit: audit.NewLogger(audit.NewMemoryStore(100), &audit.Config{Enabled: true, LogLevel: audit.SeverityDebug, BufferSize: 100}),
	}
	t.Cleanup(func() { _ = n.audit.Close() })

	denyTmp, err := policy.Compile(policy.Document{Extensions: policy.Rules{Deny: []string{"tmp"}}})
	if err != nil {
		t.Fatal(err)
	}

	deps := Dependencies{
		NodeID:      "test",
		Version:     "dev",
		WAL:         store,
		Registry:    n.reg,
		Participant: twopc.NewParticipant(n.reg, store, n.audit),
		Coordinator: twopc.NewCoordinator(twopc.NewHTTPTransport(nil, 0), store, n.audit, twopc.Config{
			PeerTimeout: 300 * time.Millisecond,
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
		}),
		Policy: policy.NewStaticStore(denyTmp),
		Audit:  n.audit,
	}
	mw := DefaultMiddlewareConfig()
	mw.RateLimitDisabled = true
	for _, opt := range opts {
		opt(&deps, mw)
	}

	n.srv = httptest.NewServer(NewRouter(NewHandler(deps), mw).SetupChi())
	t.Cleanup(n.srv.Close)
	return n
}

func post(t *testing.T, url string, body interface{}, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, url, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return do(t, req)
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// envelope decodes an APIResponse with Data left raw.
type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return env
}

func sampleRecord() models.Record {
	return models.Record{Operation: models.OpWrite, Path: "/srv/a.txt", User: "alice"}
}

func TestHealth(t *testing.T) {
	n := newTestNode(t, withPeers("http://x", "http://y"))
	resp, body := get(t, n.srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var h HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Peers != 2 || h.NodeID != "test" {
		t.Errorf("health = %+v", h)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestParticipantEndpoints(t *testing.T) {
	n := newTestNode(t)
	rec := sampleRecord()

	resp, body := post(t, n.srv.URL+"/2pc/commit", rec)
	if resp.StatusCode != http.StatusConflict || string(body) != "NOT_PREPARED" {
		t.Errorf("commit before prepare = %d %q", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %s", resp.Header.Get("Content-Type"))
	}

	resp, body = post(t, n.srv.URL+"/2pc/prepare", rec, twopc.TransactionIDHeader, "txn-9")
	if resp.StatusCode != http.StatusOK || string(body) != "YES" {
		t.Fatalf("prepare = %d %q", resp.StatusCode, body)
	}
	if s, _, _ := n.reg.Get(context.Background(), "txn-9"); s != registry.StatePrepared {
		t.Errorf("registry state = %s", s)
	}

	resp, body = post(t, n.srv.URL+"/2pc/commit", rec, twopc.TransactionIDHeader, "txn-9")
	if resp.StatusCode != http.StatusOK || string(body) != "COMMITTED" {
		t.Errorf("commit = %d %q", resp.StatusCode, body)
	}

	resp, body = post(t, n.srv.URL+"/2pc/abort", rec, twopc.TransactionIDHeader, "txn-9")
	if resp.StatusCode != http.StatusOK || string(body) != "ABORTED" {
		t.Errorf("abort = %d %q", resp.StatusCode, body)
	}
}

func TestParticipantRejectsBadInput(t *testing.T) {
	n := newTestNode(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{not json"},
		{"empty path", models.Record{Operation: models.OpCreate}},
		{"unknown operation", `{"operation":"CHOWN","path":"/a"}`},
		{"missing operation", `{"path":"/a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := post(t, n.srv.URL+"/2pc/prepare", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if n.reg.Len() != 0 {
		t.Errorf("registry rows = %d, invalid input must not prepare", n.reg.Len())
	}
}

func TestCommitAcrossNodes(t *testing.T) {
	b := newTestNode(t)
	c := newTestNode(t)
	a := newTestNode(t, withPeers(b.srv.URL, c.srv.URL))
	ctx := context.Background()

	rec := sampleRecord()
	for _, n := range []*testNode{a, b, c} {
		if err := n.store.Append(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := post(t, a.srv.URL+"/commit", rec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commit = %d %s", resp.StatusCode, body)
	}
	env := decodeEnvelope(t, body)
	var out models.CommitOutcome
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.PrepareOKs != 2 || out.CommitOKs != 2 || out.Peers != 2 || !out.LocalMarked {
		t.Errorf("outcome = %+v", out)
	}

	for name, n := range map[string]*testNode{"a": a, "b": b, "c": c} {
		records, _ := n.store.ReadAll(ctx)
		if len(records) != 1 || !records[0].Committed {
			t.Errorf("node %s WAL = %+v, want committed", name, records)
		}
	}

	// The coordinator's transaction shows up on the peers.
	resp, body = get(t, b.srv.URL+"/api/v1/transactions/"+out.TransactionID)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "COMMITTED") {
		t.Errorf("peer transaction = %d %s", resp.StatusCode, body)
	}
}

func TestCommitQuorumNotReached(t *testing.T) {
	a := newTestNode(t, withPeers("http://127.0.0.1:1"))
	rec := sampleRecord()

	resp, body := post(t, a.srv.URL+"/commit", rec)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	env := decodeEnvelope(t, body)
	if env.Error == nil || env.Error.Code != CodeQuorumNotReached {
		t.Fatalf("error = %+v", env.Error)
	}
	if env.Error.Details["phase"] != "prepare" || env.Error.Details["transaction_id"] == "" {
		t.Errorf("details = %v", env.Error.Details)
	}
}

func TestCommitNoPeers(t *testing.T) {
	a := newTestNode(t)
	resp, body := post(t, a.srv.URL+"/commit", sampleRecord())
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d %s, zero peers never reach quorum", resp.StatusCode, body)
	}
}

func TestCommitInvalidRecord(t *testing.T) {
	a := newTestNode(t, withPeers("http://127.0.0.1:1"))
	resp, body := post(t, a.srv.URL+"/commit", `{"operation":"WRITE"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d %s", resp.StatusCode, body)
	}
}

func TestWALAndAppend(t *testing.T) {
	n := newTestNode(t)

	resp, body := get(t, n.srv.URL+"/wal")
	if resp.StatusCode != http.StatusOK || string(decodeEnvelope(t, body).Data) != "[]" {
		t.Fatalf("empty wal = %d %s", resp.StatusCode, body)
	}

	resp, body = post(t, n.srv.URL+"/api/v1/append", sampleRecord())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append = %d %s", resp.StatusCode, body)
	}

	resp, body = post(t, n.srv.URL+"/api/v1/append", models.Record{Operation: models.OpCreate, Path: "/x/scratch.tmp"})
	if resp.StatusCode != http.StatusForbidden || decodeEnvelope(t, body).Error.Code != CodePolicyRejected {
		t.Errorf("policy reject = %d %s", resp.StatusCode, body)
	}

	resp, _ = post(t, n.srv.URL+"/api/v1/append", `{"operation":"EXPLODE","path":"/a"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid operation = %d", resp.StatusCode)
	}

	_, body = get(t, n.srv.URL+"/wal")
	var records []models.Record
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Path != "/srv/a.txt" || records[0].Committed {
		t.Errorf("wal = %+v", records)
	}

	_, body = get(t, n.srv.URL+"/api/v1/wal/stats")
	var stats WALStatsResponse
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Stats.Appends != 1 || stats.Archives == nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAbortEndpoint(t *testing.T) {
	b := newTestNode(t)
	a := newTestNode(t, withPeers(b.srv.URL))
	rec := sampleRecord()

	post(t, b.srv.URL+"/2pc/prepare", rec, twopc.TransactionIDHeader, "stuck")

	resp, body := post(t, a.srv.URL+"/api/v1/abort", AbortRequest{Record: &rec, TransactionID: "stuck"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("abort = %d %s", resp.StatusCode, body)
	}
	var out AbortResponse
	_ = json.Unmarshal(decodeEnvelope(t, body).Data, &out)
	if out.Acks != 1 || out.TransactionID != "stuck" {
		t.Errorf("abort response = %+v", out)
	}
	if s, _, _ := b.reg.Get(context.Background(), "stuck"); s != registry.StateAborted {
		t.Errorf("peer state = %s, want ABORTED", s)
	}

	resp, _ = post(t, a.srv.URL+"/api/v1/abort", `{"transaction_id":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("abort without record = %d", resp.StatusCode)
	}
}

func TestPolicyReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("extensions:\n  deny: [tmp]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := policy.NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	n := newTestNode(t, withPolicy(store))

	if err := os.WriteFile(path, []byte("extensions:\n  deny: [log]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	resp, body := post(t, n.srv.URL+"/api/v1/policy/reload", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload = %d %s", resp.StatusCode, body)
	}

	resp, _ = post(t, n.srv.URL+"/api/v1/append", models.Record{Operation: models.OpCreate, Path: "/a.tmp"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("tmp after reload = %d, want admitted", resp.StatusCode)
	}
	resp, _ = post(t, n.srv.URL+"/api/v1/append", models.Record{Operation: models.OpCreate, Path: "/a.log"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("log after reload = %d, want rejected", resp.StatusCode)
	}

	if err := os.WriteFile(path, []byte("operations:\n  deny: [EXPLODE]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	resp, _ = post(t, n.srv.URL+"/api/v1/policy/reload", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("broken reload = %d, want 422", resp.StatusCode)
	}

	static := newTestNode(t)
	resp, _ = post(t, static.srv.URL+"/api/v1/policy/reload", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("static reload = %d, want 409", resp.StatusCode)
	}
}

func TestAuditEndpoint(t *testing.T) {
	n := newTestNode(t)
	rec := sampleRecord()
	post(t, n.srv.URL+"/2pc/prepare", rec, twopc.TransactionIDHeader, "t-1")
	post(t, n.srv.URL+"/2pc/commit", rec, twopc.TransactionIDHeader, "t-2")

	var out AuditQueryResponse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := get(t, n.srv.URL+"/api/v1/audit?limit=10")
		_ = json.Unmarshal(decodeEnvelope(t, body).Data, &out)
		if out.Total == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if out.Total != 2 {
		t.Fatalf("audit total = %d, want 2", out.Total)
	}

	_, body := get(t, n.srv.URL+"/api/v1/audit?type=commit.conflict")
	_ = json.Unmarshal(decodeEnvelope(t, body).Data, &out)
	if len(out.Events) != 1 || out.Events[0].CorrelationID != "t-2" {
		t.Errorf("conflict events = %+v", out.Events)
	}

	resp, _ := get(t, n.srv.URL+"/api/v1/audit?limit=5000")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized limit = %d", resp.StatusCode)
	}
}

func TestPeersAndTransactions(t *testing.T) {
	n := newTestNode(t, withPeers("http://b", "http://a"))

	_, body := get(t, n.srv.URL+"/api/v1/peers")
	var peers []models.PeerStatus
	_ = json.Unmarshal(decodeEnvelope(t, body).Data, &peers)
	if len(peers) != 2 {
		t.Errorf("peers = %+v", peers)
	}

	resp, _ := get(t, n.srv.URL+"/api/v1/transactions/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown transaction = %d", resp.StatusCode)
	}
}

func TestRateLimitSkipsPeerRoutes(t *testing.T) {
	n := newTestNode(t, withRateLimit(2))

	for i := 0; i < 2; i++ {
		if resp, _ := get(t, n.srv.URL+"/wal"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d = %d", i, resp.StatusCode)
		}
	}
	resp, body := get(t, n.srv.URL+"/wal")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", resp.StatusCode)
	}
	if decodeEnvelope(t, body).Error.Code != CodeRateLimited {
		t.Errorf("body = %s", body)
	}

	for i := 0; i < 5; i++ {
		if resp, _ := post(t, n.srv.URL+"/2pc/prepare", sampleRecord()); resp.StatusCode != http.StatusOK {
			t.Errorf("peer request %d = %d", i, resp.StatusCode)
		}
	}
	if resp, _ := get(t, n.srv.URL+"/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}
}

func TestNotFound(t *testing.T) {
	n := newTestNode(t)
	resp, body := get(t, n.srv.URL+"/nope")
	if resp.StatusCode != http.StatusNotFound || decodeEnvelope(t, body).Error.Code != CodeNotFound {
		t.Errorf("404 = %d %s", resp.StatusCode, body)
	}
}

func TestClientRoutesCompress(t *testing.T) {
	n := newTestNode(t)
	req, _ := http.NewRequest(http.MethodGet, n.srv.URL+"/wal", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", resp.Header.Get("Content-Encoding"))
	}
}
