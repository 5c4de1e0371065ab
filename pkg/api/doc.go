/*
Package api implements Cadence's network surfaces: an HTTP server for
health, metrics, live notifications and stored media, and a read-only gRPC
server exposing the standard health service.

Neither surface creates or edits posts, rules or accounts. Those are
seeded through the CLI (cadence apply) and mutated only by the executor,
the auto-reply engine and the notification service.

# Architecture

	           ┌──────────────── HTTP (:8080) ────────────────┐
	           │                                               │
	browser ──►│ GET /ws?user_id=       ──► notify.Hub         │
	           │ GET /notifications     ──► notify.Service.List│
	           │ GET /media/{name}      ──► media.LocalStore   │
	           │ /health /ready /live   ──► metrics.Registry   │
	           │ /metrics               ──► promhttp           │
	           └───────────────────────────────────────────────┘
	           ┌──────────────── gRPC (:9090) ────────────────┐
	probes ───►│ grpc.health.v1.Health  ◄── SyncHealth         │
	           └───────────────────────────────────────────────┘

# Live notifications

GET /ws upgrades to a websocket and registers it as the user's live
connection. The hub immediately sends a connection_established envelope
with the number of queued messages; queued messages follow on the next
flush. Clients may send JSON messages:

	{"type": "ping"}                            → heartbeat envelope
	{"type": "mark_read", "notification_id": …} → ack, logged
	{"type": <anything else>}                   → ack

Every client message refreshes the connection's heartbeat. When the
client goes away the connection is unregistered; a newer connection for
the same user is left alone. Shutdown closes all sockets through the hub
since the HTTP server no longer tracks hijacked connections.

# Resync

GET /notifications?user_id=&limit= returns stored notifications newest
first, rendered like the live "notification" payload. limit defaults to
50 and is capped at 500.

# Health

/health reports every registered component and answers 503 when any is
unhealthy. /ready additionally lists the accounts bucket to prove the
ledger is readable and requires the critical components (store and
scheduler). The gRPC health service mirrors the same registry: the empty
service name follows readiness and each component is served as
"cadence.<component>". SyncHealth copies the registry and runs as a
scheduler task. /live only reports uptime.

Both servers take the registry explicitly (Config.Health and
NewGRPCServer), so tests build their own.

# Access control

/ws, /notifications and /media are guarded per client: a token bucket
(RequestsPerSecond, Burst) answers 429 when exhausted, and optional
allow and deny lists of addresses or CIDRs answer 403. The client is the
first X-Forwarded-For entry, then X-Real-IP, then the socket address.
Idle limiters are dropped by PruneLimiters. Probes and /metrics are
never filtered.

# Metrics

Every HTTP request is counted in cadence_api_requests_total and timed in
cadence_api_request_duration_seconds, labeled by route pattern.

# gRPC interceptors

ReadOnlyInterceptor rejects any method not named Check, Watch, List or
Get with PermissionDenied. RecoveryInterceptor turns handler panics into
Internal errors.

# Usage

	healthReg := metrics.NewProcessRegistry(clock.Real())
	srv := api.NewServer(api.Config{Addr: ":8080", Version: version, Health: healthReg},
		store, hub, notifier, mediaStore)
	go srv.Start()
	defer srv.Shutdown(ctx)

	grpcSrv := api.NewGRPCServer(healthReg)
	go grpcSrv.Start(":9090")
	defer grpcSrv.Stop()
*/
package api
