package converse

import "fmt"

const escapeByte = 0x7D

func needsEscape(b byte) bool {
	switch b {
	case 0xFD, 0xFE, 0x11, 0x12, 0x13, escapeByte:
		return true
	}

	return false
}

// EscapeBytes byte-stuffs b: every control byte, and the escape byte itself, is
// replaced by 0x7D followed by the byte XOR 0x20.
func EscapeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, v := range b {
		if needsEscape(v) {
			out = append(out, escapeByte, v^0x20)
			continue
		}
		out = append(out, v)
	}

	return out
}

// UnescapeBytes reverses EscapeBytes. Sessions built WithEscaping apply both
// on the wire; callers framing payloads themselves can use them directly.
func UnescapeBytes(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, fmt.Errorf("%w: trailing 0x7D at offset %d", ErrBadEscape, i)
		}
		i++
		out = append(out, b[i]^0x20)
	}

	return out, nil
}
