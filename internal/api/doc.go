// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

/*
Package api serves intentd over HTTP using the chi router.

Two audiences share one listener:

Peers call the participant endpoints. Bodies are a JSON record in and a
short plain text vote out:

	POST /2pc/prepare   200 YES          | 400 invalid record
	POST /2pc/commit    200 COMMITTED    | 409 NOT_PREPARED | 400 | 500 WAL error
	POST /2pc/abort     200 ABORTED      | 400

The coordinator passes the transaction id in X-Transaction-ID. Without it
the participant derives the id from the record identity. These routes are
not rate limited: throttling a peer would look like a lost vote.

Clients use JSON endpoints wrapped in models.APIResponse:

	GET  /wal                     active WAL records
	POST /commit                  replicate a record through 2PC
	GET  /health                  liveness, also the peer health probe
	GET  /metrics                 Prometheus exposition
	POST /api/v1/append           append through the admission policy
	POST /api/v1/abort            broadcast an abort
	POST /api/v1/policy/reload    re-read the policy file
	GET  /api/v1/peers            last peer health snapshot
	GET  /api/v1/audit            audit events
	GET  /api/v1/wal/stats        WAL counters and archive list
	GET  /api/v1/transactions/{id} local registry state
*/
package api
