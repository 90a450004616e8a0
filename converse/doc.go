// Package converse implements the protocol conversation engine.
//
// A protocol is described as named conversations. Each conversation is an ordered
// list of messages, and each message is one line of a small definition language:
//
//	S 01 03 $ADDR(BYTE[2]) $CS(CHECKSUM16)
//	R 01 03 $LEN(BYTE[1],DATA) $DATA(BYTE) $CRC(CHECKSUM16)
//	F '<msg>'
//	E $%PAYLOAD(DYNAMICBYTE[4096]) '</msg>'
//
// The leading letter selects the message type: S sends, R reads and matches, F
// searches forward for the message bytes and E extracts. Tokens are hex bytes,
// quoted text, '~'-prefixed literals excluded from the checksum, and $NAME variable
// references. A variable is declared by its first typed reference and shared by
// every later reference in the same scope.
//
// A session built WithEscaping byte-stuffs every element except '~' literals,
// which act as frame delimiters; checksums cover the unescaped bytes.
//
// A Converse owns the conversations and variables of one protocol session and runs
// them against a stream.DeviceStream. Sessions are not safe for concurrent
// conversations; each device owns its own Converse.
package converse
