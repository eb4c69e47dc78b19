// Package feed implements the upstream Feed Connector.
//
// The connector:
//   - Owns the single multiplexed WebSocket connection to the upstream feed
//   - Sends subscribe/unsubscribe commands as the desired symbol set changes
//   - Parses inbound ticks and hands them to a single registered handler
//   - Sends heartbeats while connected and reconnects with a fixed delay,
//     giving up after a configured attempt ceiling
package feed
