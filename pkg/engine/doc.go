// Package engine is the composition root of the bridge. Service wires the
// remote session, command queue, attribute synchronizer, idle watchdog and
// event bridge together and owns a single run loop: dispatches, lifecycle
// callbacks, queue flushes and snapshot publishes all execute on that loop,
// in the order they were posted.
package engine
