// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
)

// peerServer answers /2pc/<phase> with fixed replies. A nil reply blocks
// until the client gives up.
type peerServer struct {
	*httptest.Server
	calls   map[Phase]*atomic.Int32
	lastTxn atomic.Value
}

type reply struct {
	status int
	body   string
}

func newPeerServer(t *testing.T, replies map[Phase]*reply) *peerServer {
	t.Helper()
	ps := &peerServer{calls: map[Phase]*atomic.Int32{}}
	for _, p := range Phases {
		ps.calls[p] = &atomic.Int32{}
	}

	mux := http.NewServeMux()
	for _, p := range Phases {
		mux.HandleFunc(p.Route(), func(w http.ResponseWriter, r *http.Request) {
			ps.calls[p].Add(1)
			ps.lastTxn.Store(r.Header.Get(TransactionIDHeader))

			rep := replies[p]
			if rep == nil {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(rep.status)
			_, _ = fmt.Fprint(w, rep.body)
		})
	}
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

// participantServer exposes a real Participant over HTTP.
func participantServer(t *testing.T, p *Participant) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, phase := range Phases {
		mux.HandleFunc(phase.Route(), func(w http.ResponseWriter, r *http.Request) {
			var rec models.Record
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			vote, err := p.Handle(r.Context(), phase, &rec, r.Header.Get(TransactionIDHeader))
			switch {
			case errors.Is(err, ErrInvalidRecord):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case err != nil:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			case vote == VoteNotPrepared:
				w.WriteHeader(http.StatusConflict)
				_, _ = fmt.Fprint(w, vote)
			default:
				_, _ = fmt.Fprint(w, vote)
			}
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testCoordinator(t *testing.T, transport Transport) (*Coordinator, *node) {
	t.Helper()
	local := newNode(t)
	c := NewCoordinator(transport, local.store, local.log, Config{
		PeerTimeout: 100 * time.Millisecond,
		MaxAttempts: 5,
		BaseBackoff: time.Millisecond,
	})
	return c, local
}

func TestCommitRecordEndToEndCommitQuorumLost(t *testing.T) {
	a := newPeerServer(t, map[Phase]*reply{
		PhasePrepare: {http.StatusOK, "YES"},
		PhaseCommit:  {http.StatusOK, "COMMITTED"},
	})
	b := newPeerServer(t, map[Phase]*reply{
		PhasePrepare: {http.StatusOK, "YES"},
		PhaseCommit:  {http.StatusConflict, "NOT_PREPARED"},
	})
	cPeer := newPeerServer(t, map[Phase]*reply{})

	coord, local := testCoordinator(t, NewHTTPTransport(nil, 0))
	ctx := context.Background()
	rec := sample()
	if err := local.store.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}

	result, err := coord.CommitRecord(ctx, []string{a.URL, b.URL, cPeer.URL}, rec)

	var qerr *QuorumError
	if !errors.As(err, &qerr) {
		t.Fatalf("CommitRecord err = %v, want *QuorumError", err)
	}
	if qerr.Phase != PhaseCommit {
		t.Errorf("failed phase = %s, want commit", qerr.Phase)
	}
	if qerr.Oks != 1 || qerr.Peers != 3 || qerr.Attempts != 5 {
		t.Errorf("quorum error = %+v, want 1/3 after 5", qerr)
	}
	if result.Prepare.Oks != 2 || !result.Prepare.Quorum() || result.Prepare.Attempts != 1 {
		t.Errorf("prepare tally = %+v, want 2/3 on the first attempt", result.Prepare)
	}
	if len(result.Commit.Failures) != 2 {
		t.Errorf("commit failures = %d, want 2", len(result.Commit.Failures))
	}
	if result.LocalMarked {
		t.Error("LocalMarked must be false")
	}

	records, _ := local.store.ReadAll(ctx)
	if len(records) != 1 || records[0].Committed {
		t.Errorf("local WAL = %+v, record must stay uncommitted", records)
	}

	if got := a.calls[PhaseCommit].Load(); got != 5 {
		t.Errorf("peer A commit calls = %d, want 5", got)
	}
	if got := a.calls[PhaseAbort].Load(); got != 0 {
		t.Errorf("no compensating abort expected, got %d", got)
	}
	if txn, _ := a.lastTxn.Load().(string); txn != result.TransactionID {
		t.Errorf("peer saw txn %q, want %q", txn, result.TransactionID)
	}
}

func TestCommitRecordAllParticipants(t *testing.T) {
	ctx := context.Background()
	rec := sample()

	var peers []string
	var nodes []*node
	for i := 0; i < 3; i++ {
		n := newNode(t)
		if err := n.store.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		nodes = append(nodes, n)
		peers = append(peers, participantServer(t, n.p).URL)
	}

	coord, local := testCoordinator(t, NewHTTPTransport(nil, 100))
	_ = local.store.Append(ctx, rec)

	result, err := coord.CommitRecord(ctx, peers, rec)
	if err != nil {
		t.Fatalf("CommitRecord() error = %v", err)
	}
	if result.Prepare.Oks != 3 || result.Commit.Oks != 3 || !result.LocalMarked {
		t.Errorf("result = %+v", result)
	}
	out := result.Outcome()
	if out.Peers != 3 || out.TransactionID == "" {
		t.Errorf("outcome = %+v", out)
	}

	for i, n := range nodes {
		records, _ := n.store.ReadAll(ctx)
		if !records[0].Committed {
			t.Errorf("peer %d WAL record not committed", i)
		}
	}
	records, _ := local.store.ReadAll(ctx)
	if !records[0].Committed {
		t.Error("local WAL record not committed")
	}

	// A second submission is an independent transaction.
	again, err := coord.CommitRecord(ctx, peers, rec)
	if err != nil {
		t.Fatalf("second CommitRecord() error = %v", err)
	}
	if again.TransactionID == result.TransactionID {
		t.Error("each CommitRecord must use a fresh transaction id")
	}
	if again.LocalMarked {
		t.Error("nothing left to mark on the second run")
	}
}

func TestCommitRecordPrepareFailure(t *testing.T) {
	var commits atomic.Int32
	transport := TransportFunc(func(_ context.Context, peer string, phase Phase, _ *models.Record, _ string) error {
		if phase == PhaseCommit {
			commits.Add(1)
		}
		if peer == "a" {
			return nil
		}
		return &TransportError{Peer: peer, Phase: phase, Err: errors.New("down")}
	})
	coord, _ := testCoordinator(t, transport)

	result, err := coord.CommitRecord(context.Background(), []string{"a", "b", "c"}, sample())
	var qerr *QuorumError
	if !errors.As(err, &qerr) || qerr.Phase != PhasePrepare {
		t.Fatalf("err = %v, want prepare QuorumError", err)
	}
	if result.Prepare.Oks != 1 {
		t.Errorf("prepare oks = %d, want 1", result.Prepare.Oks)
	}
	if commits.Load() != 0 {
		t.Error("commit phase must not run after a failed prepare")
	}
}

func TestCommitRecordInvalid(t *testing.T) {
	coord, local := testCoordinator(t, TransportFunc(func(context.Context, string, Phase, *models.Record, string) error {
		t.Error("no peer may be contacted for an invalid record")
		return nil
	}))
	ctx := context.Background()
	_, err := coord.CommitRecord(ctx, []string{"a"}, &models.Record{Path: "/x"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
	_, err = coord.Abort(ctx, []string{"a"}, &models.Record{Path: "/x"}, "txn-9")
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Abort err = %v, want ErrInvalidRecord", err)
	}
	_ = local.log.Close()

	submits, _ := local.audit.Query(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypeSubmitRejected}})
	if len(submits) != 1 || submits[0].Outcome != audit.OutcomeFailure {
		t.Errorf("submit rejected events = %+v, want one failure", submits)
	}
	aborts, _ := local.audit.Query(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypeAbortRejected}})
	if len(aborts) != 1 || aborts[0].CorrelationID != "txn-9" {
		t.Errorf("abort rejected events = %+v, want one for txn-9", aborts)
	}
}

func TestCoordinateWithRetryBackoff(t *testing.T) {
	var attempt atomic.Int32
	transport := TransportFunc(func(_ context.Context, peer string, _ Phase, _ *models.Record, _ string) error {
		// Peer "a" answers only during the second attempt.
		if peer == "a" && attempt.Load() == 2 {
			return nil
		}
		return &ConflictError{Peer: peer, Status: 409, Body: "NOT_PREPARED"}
	})
	coord, _ := testCoordinator(t, transport)
	coord.cfg.BaseBackoff = 100 * time.Millisecond

	var delays []time.Duration
	coord.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		attempt.Add(1)
		return nil
	}
	attempt.Store(1)

	best, err := coord.CoordinateWithRetry(context.Background(), []string{"a", "b", "c"}, sample(), "txn", PhaseCommit)
	if !errors.Is(err, ErrQuorumNotReached) {
		t.Fatalf("err = %v", err)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
	if best.Oks != 1 || best.Attempts != 5 {
		t.Errorf("best = %+v, want oks 1 after 5 attempts", best)
	}
}

func TestCoordinateWithRetryStopsOnQuorum(t *testing.T) {
	var calls atomic.Int32
	transport := TransportFunc(func(_ context.Context, peer string, _ Phase, _ *models.Record, _ string) error {
		n := calls.Add(1)
		// First round fails everywhere, second succeeds.
		if n <= 3 {
			return &TransportError{Peer: peer, Err: errors.New("refused")}
		}
		return nil
	})
	coord, _ := testCoordinator(t, transport)

	res, err := coord.CoordinateWithRetry(context.Background(), []string{"a", "b", "c"}, sample(), "t", PhasePrepare)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if res.Attempts != 2 || res.Oks != 3 {
		t.Errorf("result = %+v, want 3 oks on attempt 2", res)
	}
	if calls.Load() != 6 {
		t.Errorf("calls = %d, want 6", calls.Load())
	}
}

func TestCoordinateWithRetryNoPeers(t *testing.T) {
	coord, _ := testCoordinator(t, TransportFunc(func(context.Context, string, Phase, *models.Record, string) error {
		return nil
	}))
	_, err := coord.CoordinateWithRetry(context.Background(), nil, sample(), "t", PhasePrepare)
	var qerr *QuorumError
	if !errors.As(err, &qerr) || qerr.Peers != 0 {
		t.Errorf("err = %v, want QuorumError with zero peers", err)
	}
}

func TestCoordinateWithRetryCancelled(t *testing.T) {
	coord, _ := testCoordinator(t, TransportFunc(func(_ context.Context, peer string, _ Phase, _ *models.Record, _ string) error {
		return &TransportError{Peer: peer, Err: errors.New("down")}
	}))
	coord.cfg.BaseBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := coord.CoordinateWithRetry(ctx, []string{"a"}, sample(), "t", PhasePrepare)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCoordinateCountsAfterAllPeers(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	transport := TransportFunc(func(ctx context.Context, peer string, _ Phase, _ *models.Record, _ string) error {
		if peer == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		mu.Lock()
		seen = append(seen, peer)
		mu.Unlock()
		return nil
	})
	coord, _ := testCoordinator(t, transport)

	res := coord.Coordinate(context.Background(), []string{"a", "slow", "b"}, sample(), "t", PhasePrepare)
	if res.Oks != 2 || res.Peers != 3 || !res.Quorum() {
		t.Errorf("result = %+v", res)
	}
	if len(res.Failures) != 1 || res.Failures[0].Peer != "slow" {
		t.Fatalf("failures = %+v", res.Failures)
	}
	if !errors.Is(res.Failures[0].Err, ErrTransport) || !errors.Is(res.Failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("timeout must be a TransportError wrapping the deadline, got %v", res.Failures[0].Err)
	}
}

func TestCoordinatorAbort(t *testing.T) {
	ctx := context.Background()
	rec := sample()
	n := newNode(t)
	peer := participantServer(t, n.p)

	_, _ = n.p.Prepare(ctx, rec, "stuck")
	coord, _ := testCoordinator(t, NewHTTPTransport(nil, 0))

	res, err := coord.Abort(ctx, []string{peer.URL}, rec, "stuck")
	if err != nil || res.Oks != 1 {
		t.Fatalf("Abort = (%+v, %v)", res, err)
	}
	if vote, _ := n.p.Commit(ctx, rec, "stuck"); vote != VoteNotPrepared {
		t.Errorf("commit after abort = %s", vote)
	}
}

func TestHTTPTransportClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		conflict bool
		ok       bool
	}{
		{"expected vote", http.StatusOK, "YES\n", false, true},
		{"conflict status", http.StatusConflict, "NOT_PREPARED", true, false},
		{"wrong vote", http.StatusOK, "ABORTED", true, false},
		{"server error", http.StatusInternalServerError, "disk full", false, false},
		{"bad request", http.StatusBadRequest, "invalid record", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPeerServer(t, map[Phase]*reply{PhasePrepare: {tt.status, tt.body}})
			err := NewHTTPTransport(srv.Client(), 0).Send(context.Background(), srv.URL, PhasePrepare, sample(), "x")
			switch {
			case tt.ok:
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
			case tt.conflict:
				var cerr *ConflictError
				if !errors.As(err, &cerr) || cerr.Body != strings.TrimSpace(tt.body) {
					t.Errorf("err = %v, want ConflictError", err)
				}
			default:
				if !errors.Is(err, ErrTransport) {
					t.Errorf("err = %v, want TransportError", err)
				}
			}
		})
	}

	err := NewHTTPTransport(nil, 0).Send(context.Background(), "http://127.0.0.1:1", PhasePrepare, sample(), "x")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("unreachable peer err = %v, want TransportError", err)
	}
}
