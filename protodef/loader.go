package protodef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a definition file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// LoadError describes a definition that could not be loaded.
type LoadError struct {
	// File is the path of the definition file, empty for Parse.
	File string
	// Message describes the error.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return "protodef: " + msg
	}

	return "protodef: " + e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}

	return "", &LoadError{File: path, Message: "unknown definition file extension"}
}

// Load reads and validates a definition file. The format follows the file
// extension: .yaml, .yml or .toml.
func Load(path string) (*Definitions, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	defs, err := Parse(data, format)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}

		return nil, &LoadError{File: path, Message: err.Error()}
	}

	return defs, nil
}

// Parse decodes and validates definitions. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Definitions, error) {
	var defs Definitions

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
			return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &defs)
		if err != nil {
			return nil, &LoadError{Message: "failed to parse TOML", Cause: err}
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, &LoadError{Message: fmt.Sprintf("unknown key %q", undecoded[0].String())}
		}
	default:
		return nil, &LoadError{Message: fmt.Sprintf("unsupported format %q", format)}
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}

	return &defs, nil
}

// Validate checks names and cross references without building anything.
func (d *Definitions) Validate() error {
	protocols := make(map[string]struct{}, len(d.Protocols))
	for _, p := range d.Protocols {
		if p.Name == "" {
			return &LoadError{Message: "protocol without name"}
		}
		key := strings.ToLower(p.Name)
		if _, ok := protocols[key]; ok {
			return &LoadError{Message: fmt.Sprintf("duplicate protocol %q", p.Name)}
		}
		protocols[key] = struct{}{}

		convs := make(map[string]struct{}, len(p.Conversations))
		for _, c := range p.Conversations {
			if c.Name == "" {
				return &LoadError{Message: fmt.Sprintf("protocol %q has a conversation without name", p.Name)}
			}
			ckey := strings.ToLower(c.Name)
			if _, ok := convs[ckey]; ok {
				return &LoadError{Message: fmt.Sprintf("protocol %q has duplicate conversation %q", p.Name, c.Name)}
			}
			convs[ckey] = struct{}{}
			if len(c.Messages) == 0 {
				return &LoadError{Message: fmt.Sprintf("conversation %q has no messages", c.Name)}
			}
		}
	}

	devices := make(map[string]struct{}, len(d.Devices))
	for _, dev := range d.Devices {
		if dev.Name == "" {
			return &LoadError{Message: "device without name"}
		}
		key := strings.ToLower(dev.Name)
		if _, ok := devices[key]; ok {
			return &LoadError{Message: fmt.Sprintf("duplicate device %q", dev.Name)}
		}
		devices[key] = struct{}{}

		if _, ok := protocols[strings.ToLower(dev.Protocol)]; !ok {
			return &LoadError{Message: fmt.Sprintf("device %q uses unknown protocol %q", dev.Name, dev.Protocol)}
		}
		for _, b := range dev.Blocks {
			for _, r := range b.Registers {
				if err := r.validateAddressing(); err != nil {
					return &LoadError{Message: fmt.Sprintf("device %q block %q", dev.Name, b.Name), Cause: err}
				}
			}
		}
	}

	return nil
}
