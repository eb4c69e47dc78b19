// Package session tracks connected downstream clients.
//
// A Session represents one client connection, real or synthetic, together
// with the sink quotes are pushed to and the last time the client showed
// activity. The Registry is the single shared directory of live sessions
// and supports stale-session cleanup independent of any scheduler.
package session
