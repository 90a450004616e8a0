// Package stream provides the byte transport a protocol conversation runs against.
//
// A Stream owns a background reader that appends everything received from the
// device into an internal buffer. Conversation steps then consume that buffer
// with ReadFromBuffer (fixed length reads) or FindInBuffer (pattern search),
// each bounded by a timeout. Timeouts are reported through MatchInfo rather than
// as errors; errors are reserved for I/O failures and closed streams.
//
// Links of the form socket://host:port or tcp://host:port open a TCP
// connection; any other link is treated as a serial device path.
package stream
