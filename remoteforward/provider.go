// Package remoteforward implements optional outbound fan-out of Event Admin
// traffic to external brokers. None of these providers sit on the async dispatch
// hot path: each is wired as an eventadmin.Admin.OnLifecycleEvent/OnBlacklist
// subscriber, or driven from application code calling Forward explicitly after a
// local Send/Post, so a slow or unreachable broker can never blacklist a handler
// or block the bounded in-process queue (spec §4.6 isolation requirement).
package remoteforward

import "context"

// Provider forwards a single event's (topic, properties) pair to an external
// system. Implementations must treat ctx cancellation as "give up silently" rather
// than retry indefinitely — callers are expected to be fire-and-forget.
type Provider interface {
	Forward(ctx context.Context, topic string, properties map[string]any) error
	Close() error
}
