package protodef

import "strings"

// Definitions is the root of a definition file.
type Definitions struct {
	Protocols []Protocol `yaml:"protocols" toml:"protocols"`
	Devices   []Device   `yaml:"devices" toml:"devices"`
}

// Protocol describes a conversation session.
type Protocol struct {
	Name string `yaml:"name" toml:"name"`
	// Checksum is a checksum strategy name such as "modbus" or "sum8".
	Checksum         string `yaml:"checksum" toml:"checksum"`
	Endian16         string `yaml:"endian16" toml:"endian16"`
	Endian32         string `yaml:"endian32" toml:"endian32"`
	ChecksumEndian16 string `yaml:"checksum_endian16" toml:"checksum_endian16"`
	// SendGapMillis and TimeoutMillis override the session defaults when set.
	SendGapMillis *int     `yaml:"send_gap_millis" toml:"send_gap_millis"`
	TimeoutMillis *int     `yaml:"timeout_millis" toml:"timeout_millis"`
	ScopePrefixes []string `yaml:"scope_prefixes" toml:"scope_prefixes"`
	// Escape byte-stuffs every element except '~' literals on the wire.
	Escape bool `yaml:"escape" toml:"escape"`
	// MaxVariableSize bounds length prefixed and dynamic payloads.
	MaxVariableSize int `yaml:"max_variable_size" toml:"max_variable_size"`

	Conversations []Conversation `yaml:"conversations" toml:"conversations"`
}

// Conversation is a named list of message lines.
type Conversation struct {
	Name string `yaml:"name" toml:"name"`
	// TimeoutMillis overrides the protocol timeout; 0 waits without deadline.
	TimeoutMillis *int     `yaml:"timeout_millis" toml:"timeout_millis"`
	Messages      []string `yaml:"messages" toml:"messages"`
}

// Device binds a protocol to a link and a set of register blocks.
type Device struct {
	Name     string `yaml:"name" toml:"name"`
	Protocol string `yaml:"protocol" toml:"protocol"`
	// Link is "socket://host:port", "tcp://host:port" or a serial device path.
	Link       string `yaml:"link" toml:"link"`
	BaudRate   int    `yaml:"baud_rate" toml:"baud_rate"`
	RetryCount *int   `yaml:"retry_count" toml:"retry_count"`
	// Variables presets global session variables with hex bytes, e.g. ADDR: "01".
	Variables map[string]string `yaml:"variables" toml:"variables"`
	Blocks    []Block           `yaml:"blocks" toml:"blocks"`
}

// Block describes a device block.
type Block struct {
	Name      string     `yaml:"name" toml:"name"`
	Read      string     `yaml:"read" toml:"read"`
	Write     string     `yaml:"write" toml:"write"`
	Data      string     `yaml:"data" toml:"data"`
	Size      int        `yaml:"size" toml:"size"`
	Registers []Register `yaml:"registers" toml:"registers"`
}

// Register describes one register. Exactly one of Offset, Variable or Fixed
// selects its addressing.
//
// Kind is "number" (the default), "string" or "bytes". Type is the number
// wire type such as "uint16_exp" and Encoding the string encoding such as
// "cstring". Fixed and the value list entries are parsed according to Kind:
// numbers as decimals, strings as text and bytes as hex.
type Register struct {
	Name      string       `yaml:"name" toml:"name"`
	Kind      string       `yaml:"kind" toml:"kind"`
	Type      string       `yaml:"type" toml:"type"`
	Encoding  string       `yaml:"encoding" toml:"encoding"`
	Offset    *int         `yaml:"offset" toml:"offset"`
	Variable  string       `yaml:"variable" toml:"variable"`
	Fixed     *string      `yaml:"fixed" toml:"fixed"`
	Size      int          `yaml:"size" toml:"size"`
	Scale     float64      `yaml:"scale" toml:"scale"`
	Endian16  string       `yaml:"endian16" toml:"endian16"`
	Endian32  string       `yaml:"endian32" toml:"endian32"`
	SignedBCD bool         `yaml:"signed_bcd" toml:"signed_bcd"`
	Flags     []string     `yaml:"flags" toml:"flags"`
	Values    []NamedValue `yaml:"values" toml:"values"`
}

// NamedValue is a value list entry; Value is parsed according to the register kind.
type NamedValue struct {
	Name  string `yaml:"name" toml:"name"`
	Tag   string `yaml:"tag" toml:"tag"`
	Value string `yaml:"value" toml:"value"`
}

// Protocol returns the protocol with the given name.
func (d *Definitions) Protocol(name string) (*Protocol, bool) {
	for i := range d.Protocols {
		if strings.EqualFold(d.Protocols[i].Name, name) {
			return &d.Protocols[i], true
		}
	}

	return nil, false
}

// Device returns the device with the given name.
func (d *Definitions) Device(name string) (*Device, bool) {
	for i := range d.Devices {
		if strings.EqualFold(d.Devices[i].Name, name) {
			return &d.Devices[i], true
		}
	}

	return nil, false
}

func (r *Register) kind() string {
	k := strings.ToLower(strings.TrimSpace(r.Kind))
	if k == "" {
		return "number"
	}

	return k
}
