/*
Package health probes Cadence's external dependencies and reports them to
the component health registry (metrics.Registry).

The executor and the auto-reply engine only learn that the platform
gateway or the generative AI provider is down when a publish or reply
fails. Probes check those dependencies on their own schedule so /health
and the gRPC health service show an outage before the next due post.

# Checkers

	┌──────────────────────────────────────────────────────────┐
	│                     Checker interface                    │
	│  • Check(ctx) Result                                     │
	│  • Type() CheckType                                      │
	└────────┬─────────────────────────────┬───────────────────┘
	         ▼                             ▼
	   ┌───────────┐                 ┌───────────┐
	   │   HTTP    │                 │    TCP    │
	   │  Checker  │                 │  Checker  │
	   └───────────┘                 └───────────┘
	   GET gateway /healthz          dial genai host:443
	   with the gateway token        (no billable request)

HTTPChecker treats 200-399 as healthy unless WithStatusRange says
otherwise. TCPChecker only proves the endpoint accepts connections;
AddressFromURL derives host:port from a base URL.

# Hysteresis

A Probe wraps a checker with a Status. One failed check does not flip the
dependency: it becomes unhealthy after Retries consecutive failures (3 by
default) and healthy again after the first success. Transitions are
logged at warn and info; individual failures at debug.

Run publishes every result to the probe's metrics.Registry under its
name ("gateway", "genai") and returns an error while the dependency is
unhealthy, so the scheduler counts the run as an error.

# Usage

	probe := health.NewProbe("gateway",
		health.NewHTTPChecker(gatewayURL+"/healthz").
			WithHeader("Authorization", "Bearer "+token),
		health.DefaultConfig(), healthReg)

	sched.Add(scheduler.Task{
		Name:     "probe:gateway",
		Interval: 30 * time.Second,
		Run:      probe.Run,
	})

Probed components are not critical: an unhealthy dependency turns /health
to 503 but leaves /ready alone, since the process itself keeps working
and retries posts once the dependency returns.
*/
package health
