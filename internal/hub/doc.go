// Package hub coordinates the session registry, the subscription registry,
// and the upstream feed connection.
//
// The Coordinator is the single mutation path: client subscribe and
// unsubscribe requests, the upstream tick stream, and the periodic cleanup
// and monitor loops all go through it. Registry mutations are serialized
// under one mutex; upstream network calls run on a dedicated reconcile
// goroutine so no caller blocks on the wire while holding the lock.
package hub
