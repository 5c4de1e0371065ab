/*
Package events provides an in-memory event broker for Cadence's domain events.

The publication executor, the auto-reply engine and the notification service
publish events here when something user-visible happens. Subscribers (the
audit logger started by `cadence run`, tests) receive every event; there is
no topic filtering.

# Architecture

	Publisher ──► eventCh (buffer 100) ──► broadcast loop
	                                            │
	                       ┌────────────────────┼──────────────────┐
	                       ▼                    ▼                  ▼
	               Subscriber (50)      Subscriber (50)     Subscriber (50)

Publish never blocks: if the broker buffer is full the event is dropped and
Publish returns false. Broadcast skips subscribers whose buffer is full. A
nil *Broker discards every event, so components can run without one.

# Event Types

	post.published         post reached posted
	post.failed            post reached failed
	post.retry_scheduled   post rescheduled by the retry policy
	reply.sent             auto-reply delivered
	reply.failed           auto-reply attempt failed
	notification.created   notification persisted for a user

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	logger := log.WithComponent("audit")
	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			logger.Info().Str("event", string(ev.Type)).Str("subject", ev.SubjectID).Msg("Activity")
		}
	}()

	broker.Publish(&events.Event{
		Type:      events.EventPostPublished,
		UserID:    post.UserID,
		SubjectID: post.ID,
	})
*/
package events
