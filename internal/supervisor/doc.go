// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

/*
Package supervisor runs the long-lived services of intentd under a suture v4
tree.

	"intentd"
	├── LayerState ("state-layer")
	│   ├── registry.Sweeper
	│   └── policy.Watcher (when the policy comes from a file)
	├── LayerCluster ("cluster-layer")
	│   ├── twopc.PeerMonitor (when peers are configured)
	│   └── ingest.Loop (when ingest is enabled)
	└── LayerAPI ("api-layer")
	    └── services.HTTPServerService

Crashed services restart with suture's backoff. Supervisor events are
logged through sutureslog onto the zerolog-backed slog logger from the
logging package.

Services that should stop for good return suture.ErrDoNotRestart; the
ingest loop does this when its source closes on its own.
*/
package supervisor
