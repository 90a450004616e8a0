// Package endian converts integers between a device's wire byte order and the
// host representation, and packs decimal values as BCD.
//
// A Converter is built from an external byte map: position i of the map holds the
// significance (0 = least significant byte) of the i-th byte on the wire. Big-endian
// 16-bit values therefore use {1, 0}, little-endian {0, 1}, and the word-swapped
// 32-bit layout used by some meters {1, 0, 3, 2}.
//
// Converters are immutable after construction and safe for concurrent use.
package endian
