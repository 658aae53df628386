/*
Package events provides an in-memory pub/sub broker for coordinator
lifecycle notifications.

Broker implements activity.EventSink: a Coordinator given a *Broker in its
Config publishes lease, activity, and membership events to it without this
package needing to import pkg/activity back. Subscribers get their own
buffered channel and never block publication — a full subscriber buffer
just drops the event rather than stalling the broadcast loop.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	coord := activity.New(activity.Config{Events: broker, ...})

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		log.Info().Str("type", string(ev.Type)).Msg(ev.Message)
	}

# Event Types

lease.acquired, lease.lost, lease.granted, lease.expired,
activity.started, activity.ended, agent.died, acquirer.died, and
membership.changed are published by *activity.Coordinator through
EventSink. EventLeaderElected is reserved for a future raft-level
publisher and is not yet emitted by anything in this module.

# See Also

  - pkg/activity.EventSink
*/
package events
