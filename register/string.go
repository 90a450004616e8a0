package register

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// StringEncoding selects how a String register maps bytes to text.
type StringEncoding int

const (
	// EncodingText is fixed width text padded with spaces or NULs.
	EncodingText StringEncoding = iota
	// EncodingCString is text terminated by the first NUL.
	EncodingCString
	// EncodingHexModel renders four hex digits as "P{}U{}M{}S{}".
	EncodingHexModel
	// EncodingModelTable maps a single byte through the Fronius model table.
	EncodingModelTable
)

var stringEncodingNames = [...]string{
	EncodingText:       "text",
	EncodingCString:    "cstring",
	EncodingHexModel:   "hex_model",
	EncodingModelTable: "model_table",
}

func (e StringEncoding) String() string {
	if e < 0 || int(e) >= len(stringEncodingNames) {
		return "unknown"
	}

	return stringEncodingNames[e]
}

// ParseStringEncoding parses an encoding name; an empty name is EncodingText.
func ParseStringEncoding(name string) (StringEncoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return EncodingText, nil
	}
	for i, n := range stringEncodingNames {
		if n == name {
			return StringEncoding(i), nil
		}
	}

	return 0, fmt.Errorf("%w: string encoding %q", ErrUnsupportedType, name)
}

// String is a text register.
type String struct {
	regBase
	encoding StringEncoding
}

var _ Register = (*String)(nil)

// NewString creates a text register.
//
// EncodingHexModel defaults to 2 bytes (binary digits); any other size reads
// the digits as ASCII text. EncodingModelTable is always 1 byte.
func NewString(spec Spec, encoding StringEncoding, opts ...Option) (*String, error) {
	if encoding < 0 || int(encoding) >= len(stringEncodingNames) {
		return nil, fmt.Errorf("%w: string encoding %d", ErrUnsupportedType, encoding)
	}
	cfg, err := newRegConfig(opts)
	if err != nil {
		return nil, err
	}

	natural := 0
	switch encoding {
	case EncodingHexModel:
		natural = 2
		if spec.Size != 0 && spec.Size != 2 && spec.Size < 4 {
			return nil, fmt.Errorf("%w: hex_model register %q needs 2 or at least 4 bytes", ErrInvalidSpec, spec.Name)
		}
	case EncodingModelTable:
		natural = 1
		if spec.Size > 1 {
			return nil, fmt.Errorf("%w: model_table register %q must be 1 byte", ErrInvalidSpec, spec.Name)
		}
	}

	s := &String{encoding: encoding}
	if err := s.init(s, spec, natural, cfg.logger); err != nil {
		return nil, err
	}
	if fv, ok := s.fixed(); ok {
		if _, ok := fv.(StringValue); !ok {
			return nil, fmt.Errorf("%w: fixed value of %q is %T", ErrUnsupportedType, spec.Name, fv)
		}
	}

	return s, nil
}

// Encoding returns the string encoding.
func (s *String) Encoding() StringEncoding { return s.encoding }

// SetValue assigns the current value; it must be a StringValue.
func (s *String) SetValue(v Value) error {
	if _, ok := v.(StringValue); !ok {
		return fmt.Errorf("%w: register %q expects a string, got %T", ErrUnsupportedType, s.spec.Name, v)
	}
	s.setCurrent(v)

	return nil
}

// GetItemValue implements Register.
func (s *String) GetItemValue(buf []byte) (Value, error) {
	raw, ok, err := s.source(buf)
	if err != nil {
		return nil, err
	}

	var v Value
	if !ok {
		v, _ = s.fixed()
	} else {
		text, err := s.decode(raw)
		if err != nil {
			return nil, err
		}
		v = StringValue(text)
	}
	s.publish(v)

	return v, nil
}

// StoreItemValue implements Register.
func (s *String) StoreItemValue(buf []byte) error {
	v, err := s.produce()
	if err != nil {
		return err
	}
	sv, ok := v.(StringValue)
	if !ok {
		return fmt.Errorf("%w: register %q expects a string, got %T", ErrUnsupportedType, s.spec.Name, v)
	}
	if _, fixed := s.fixed(); fixed {
		return nil
	}

	data, err := s.encode(string(sv))
	if err != nil {
		return err
	}

	return s.sink(buf, data)
}

func (s *String) decode(raw []byte) (string, error) {
	switch s.encoding {
	case EncodingCString:
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}

		return string(raw), nil
	case EncodingHexModel:
		var digits string
		if len(raw) == 2 {
			digits = strings.ToUpper(hex.EncodeToString(raw))
		} else {
			if len(raw) < 4 {
				return "", fmt.Errorf("%w: hex_model register %q got %d bytes", ErrDecode, s.spec.Name, len(raw))
			}
			digits = strings.ToUpper(string(raw[:4]))
			if _, err := hex.DecodeString(digits); err != nil {
				return "", fmt.Errorf("%w: hex_model register %q text %q", ErrDecode, s.spec.Name, digits)
			}
		}

		return fmt.Sprintf("P%cU%cM%cS%c", digits[0], digits[1], digits[2], digits[3]), nil
	case EncodingModelTable:
		if len(raw) < 1 {
			return "", fmt.Errorf("%w: model_table register %q is empty", ErrDecode, s.spec.Name)
		}
		name, ok := FroniusModelName(raw[0])
		if !ok {
			s.logger.Debug("unknown model code", "code", raw[0])
		}

		return name, nil
	default:
		return strings.TrimRight(string(raw), " \x00"), nil
	}
}

func (s *String) encode(text string) ([]byte, error) {
	switch s.encoding {
	case EncodingHexModel:
		if len(text) != 8 || text[0] != 'P' || text[2] != 'U' || text[4] != 'M' || text[6] != 'S' {
			return nil, fmt.Errorf("%w: register %q text %q is not a model code", ErrOutOfRange, s.spec.Name, text)
		}
		digits := string([]byte{text[1], text[3], text[5], text[7]})
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, fmt.Errorf("%w: register %q text %q is not a model code", ErrOutOfRange, s.spec.Name, text)
		}
		if s.spec.Size == 2 {
			return b, nil
		}

		return s.pad([]byte(strings.ToUpper(digits)), ' ')
	case EncodingModelTable:
		code, ok := FroniusModelCode(text)
		if !ok {
			return nil, fmt.Errorf("%w: register %q unknown model %q", ErrOutOfRange, s.spec.Name, text)
		}

		return []byte{code}, nil
	case EncodingCString:
		return s.pad([]byte(text), 0)
	default:
		return s.pad([]byte(text), ' ')
	}
}

func (s *String) pad(b []byte, fill byte) ([]byte, error) {
	if s.spec.Size == 0 {
		return b, nil
	}
	if len(b) > s.spec.Size {
		return nil, fmt.Errorf("%w: register %q text exceeds %d bytes", ErrOutOfRange, s.spec.Name, s.spec.Size)
	}

	return append(b, bytes.Repeat([]byte{fill}, s.spec.Size-len(b))...), nil
}
