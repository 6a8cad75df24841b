// Package identity persists the identity of the last lighting controller the
// user connected to, so the device link can reconnect silently on the next
// start without a new selection gesture.
//
// The store is a single-row SQLite table. WAL mode and a busy timeout are
// applied the same way as the rest of the Kryon data files.
package identity
