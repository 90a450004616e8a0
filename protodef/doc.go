// Package protodef loads protocol and device definitions from YAML or TOML
// files and builds conversation sessions and device algorithms from them.
//
// A protocol lists the message lines of its conversations together with the
// session settings (checksum, byte orders, timeouts). A device names a
// protocol, its link and the register blocks to poll. Every call to
// Protocol.NewConverse returns an independent session, so devices sharing a
// protocol never share variables.
package protodef
