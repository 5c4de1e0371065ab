/*
Package notify delivers user-facing status events: pre-posting reminders,
publish successes and publish failures.

Every notification is first persisted through the ledger, which is the
durable record clients resync from after a reconnect. Live delivery is
best-effort on top of that: a message goes straight to the user's live
connection when there is one, and into a bounded per-user offline queue
otherwise.

# Architecture

	executor ──► Service.NotifySuccess / NotifyFailure
	                         │
	AlertScheduler ──► Service.NotifyPrePosting
	                         │
	                         ▼
	         storage.CreateNotification (dedup window)
	                         │ created
	                         ▼
	                    Hub.Deliver ─────────────┐
	                         │ live, no backlog   │ offline, backlog or
	                         ▼                    ▼ send failure
	                  Conn.Send            offline queue (cap 50,
	                                        oldest dropped)
	                                              │
	                     FlushQueues (5s) ◄───────┘ when the user reconnects

# Hub

The Hub owns the process-local delivery state: at most one live connection
per user and one FIFO queue per user. Nothing in it survives a restart.

  - Register replaces any previous connection for the user and sends a
    connection_established envelope carrying the pending count.
  - Deliver sends directly only when the user's queue is empty, so a new
    message never overtakes queued ones.
  - A failed send marks the connection inactive and removes it.
  - SweepStale evicts connections that are inactive or whose heartbeat is
    older than StaleAfter (5 minutes by default).
  - FlushQueues drains queues in order for users with a live connection;
    on the first failed send the rest goes back to the front of the queue.
  - BroadcastHeartbeat pushes a heartbeat envelope to every connection;
    a successful send refreshes its heartbeat.

Sends happen outside the registry lock, serialized per connection and
bounded by SendTimeout.

# Pre-posting alerts

AlertScheduler.Schedule arms one timer per post at ScheduledAt minus the
lead (10 minutes). An in-memory set of armed post ids makes repeated calls
no-ops; if the alert time has passed nothing is armed. When the timer
fires the post is re-read and the reminder is sent only if it is still
scheduled and active. The guard is always released afterwards.

The guard does not survive restarts. ArmUpcoming runs at startup and then
periodically, and the 15-minute pre_posting dedup window in the ledger
absorbs any duplicate that results.

# Envelopes

	{"type":"connection_established","user_id":"u1","pending_messages":2,...}
	{"type":"notification","notification":{"id":"...","type":"success",...}}
	{"type":"heartbeat","timestamp":"..."}
*/
package notify
