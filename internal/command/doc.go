// Package command implements the dispatch pipeline for administrative
// START/STOP commands.
//
// The Dispatcher is the producer side: one best-effort realtime broadcast,
// then a durable enqueue as fallback. The Consumer is the worker side:
// it persists each dequeued command as a pending row (the durable source of
// truth) and makes one delivery attempt via the Deliverer. Disconnected
// targets pick their command up later through the active-command lookup and
// acknowledge it, which is why pending rows carry a TTL instead of a
// delivery retry loop.
package command
