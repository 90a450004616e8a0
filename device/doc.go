// Package device layers polling policy over a conversation session.
//
// An Algorithm owns one converse.Converse (and therefore one device link) and
// a set of Blocks. A Block names the conversation that reads it, the optional
// conversation that writes it, the variable that carries its bytes and the
// registers decoded from those bytes.
//
// Conversations that fail with a timeout are retried up to the configured
// retry count; content mismatches are never retried here.
//
// A Poller drives any number of Algorithms, one goroutine per device, and
// keeps the latest Snapshot of every block.
package device
