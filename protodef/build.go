package protodef

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-converse/checksum"
	"github.com/arloliu/go-converse/converse"
	"github.com/arloliu/go-converse/device"
	"github.com/arloliu/go-converse/endian"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/register"
)

// NewConverse builds a fresh session holding every conversation of the
// protocol. Each call returns independent conversations and variables.
func (p *Protocol) NewConverse(l logger.Logger) (*converse.Converse, error) {
	opts, err := p.converseOptions(l)
	if err != nil {
		return nil, err
	}

	c, err := converse.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("protodef: protocol %q: %w", p.Name, err)
	}

	for _, cd := range p.Conversations {
		conv, err := c.AddConversation(cd.Name, cd.Messages...)
		if err != nil {
			return nil, fmt.Errorf("protodef: protocol %q: %w", p.Name, err)
		}
		if cd.TimeoutMillis != nil {
			if *cd.TimeoutMillis < 0 {
				return nil, fmt.Errorf("protodef: conversation %q has negative timeout", cd.Name)
			}
			conv.SetTimeout(time.Duration(*cd.TimeoutMillis) * time.Millisecond)
		}
	}

	return c, nil
}

func (p *Protocol) converseOptions(l logger.Logger) ([]converse.Option, error) {
	var opts []converse.Option
	if l != nil {
		opts = append(opts, converse.WithLogger(l.With("protocol", p.Name)))
	}

	if p.Checksum != "" {
		s, err := checksum.ByName(p.Checksum)
		if err != nil {
			return nil, fmt.Errorf("protodef: protocol %q: %w", p.Name, err)
		}
		opts = append(opts, converse.WithChecksum(s))
	}

	for _, e := range []struct {
		name string
		size int
		opt  func(*endian.Converter) converse.Option
	}{
		{p.Endian16, 2, converse.WithEndian16},
		{p.Endian32, 4, converse.WithEndian32},
		{p.ChecksumEndian16, 2, converse.WithChecksumEndian16},
	} {
		if e.name == "" {
			continue
		}
		conv, err := endian.ByName(e.name, e.size)
		if err != nil {
			return nil, fmt.Errorf("protodef: protocol %q: %w", p.Name, err)
		}
		opts = append(opts, e.opt(conv))
	}

	if p.SendGapMillis != nil {
		opts = append(opts, converse.WithSendGap(time.Duration(*p.SendGapMillis)*time.Millisecond))
	}
	if p.TimeoutMillis != nil {
		opts = append(opts, converse.WithDefaultTimeout(time.Duration(*p.TimeoutMillis)*time.Millisecond))
	}
	if p.ScopePrefixes != nil {
		opts = append(opts, converse.WithConversationScopePrefixes(p.ScopePrefixes...))
	}
	if p.Escape {
		opts = append(opts, converse.WithEscaping(true))
	}
	if p.MaxVariableSize != 0 {
		opts = append(opts, converse.WithMaxVariableSize(p.MaxVariableSize))
	}

	return opts, nil
}

// NewAlgorithm presets the device variables in c and builds the device
// blocks bound to that session.
func (d *Device) NewAlgorithm(c *converse.Converse, l logger.Logger) (*device.Algorithm, error) {
	if c == nil {
		return nil, errors.New("protodef: nil converse session")
	}
	if l == nil {
		l = c.Logger()
	}

	for name, text := range d.Variables {
		v, err := c.SessionVariable(name, "")
		if err != nil {
			return nil, fmt.Errorf("protodef: device %q: %w", d.Name, err)
		}
		b, err := parseHex(text)
		if err != nil {
			return nil, fmt.Errorf("protodef: device %q variable %q: %w", d.Name, name, err)
		}
		if err := v.SetBytes(b, 0, len(b)); err != nil {
			return nil, fmt.Errorf("protodef: device %q variable %q: %w", d.Name, name, err)
		}
	}

	blocks := make([]*device.Block, 0, len(d.Blocks))
	for _, bd := range d.Blocks {
		b := &device.Block{
			Name:              bd.Name,
			ReadConversation:  bd.Read,
			WriteConversation: bd.Write,
			DataVariable:      bd.Data,
			Size:              bd.Size,
		}
		for _, rd := range bd.Registers {
			reg, err := rd.build(c, bd, l)
			if err != nil {
				return nil, fmt.Errorf("protodef: device %q block %q: %w", d.Name, bd.Name, err)
			}
			b.Registers = append(b.Registers, reg)
		}
		blocks = append(blocks, b)
	}

	opts := []device.Option{
		device.WithName(d.Name),
		device.WithLogger(l),
		device.WithBlocks(blocks...),
	}
	if d.RetryCount != nil {
		opts = append(opts, device.WithRetryCount(*d.RetryCount))
	}

	return device.NewAlgorithm(c, opts...)
}

func (r *Register) validateAddressing() error {
	n := 0
	if r.Offset != nil {
		n++
	}
	if r.Variable != "" {
		n++
	}
	if r.Fixed != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: register %q needs exactly one of offset, variable or fixed", register.ErrInvalidSpec, r.Name)
	}

	return nil
}

func (r *Register) build(c *converse.Converse, b Block, l logger.Logger) (register.Register, error) {
	if err := r.validateAddressing(); err != nil {
		return nil, err
	}

	flags, err := register.ParseFlags(r.Flags)
	if err != nil {
		return nil, err
	}
	spec := register.Spec{Name: r.Name, Size: r.Size, Flags: flags}

	for _, nv := range r.Values {
		v, err := r.parseValue(nv.Value)
		if err != nil {
			return nil, err
		}
		spec.Values = append(spec.Values, register.NamedValue{Name: nv.Name, Tag: nv.Tag, Value: v})
	}

	switch {
	case r.Offset != nil:
		spec.Addressing = register.MappedToRegisterData{Offset: *r.Offset}
	case r.Variable != "":
		v, err := c.SessionVariable(r.Variable, b.Read)
		if err != nil {
			return nil, err
		}
		spec.Addressing = register.BoundToVariable{Variable: v}
	default:
		v, err := r.parseValue(*r.Fixed)
		if err != nil {
			return nil, err
		}
		spec.Addressing = register.FixedValue{Value: v}
	}

	opts, err := r.options(l)
	if err != nil {
		return nil, err
	}

	switch r.kind() {
	case "number":
		typ, err := register.ParseNumberType(r.Type)
		if err != nil {
			return nil, err
		}

		return register.NewNumber(spec, typ, opts...)
	case "string":
		enc, err := register.ParseStringEncoding(r.Encoding)
		if err != nil {
			return nil, err
		}

		return register.NewString(spec, enc, opts...)
	case "bytes":
		return register.NewBytes(spec, opts...)
	}

	return nil, fmt.Errorf("%w: register %q kind %q", register.ErrUnsupportedType, r.Name, r.Kind)
}

func (r *Register) options(l logger.Logger) ([]register.Option, error) {
	opts := []register.Option{register.WithLogger(l), register.WithSignedBCD(r.SignedBCD)}
	if r.Scale != 0 {
		opts = append(opts, register.WithScale(r.Scale))
	}
	if r.Endian16 != "" {
		conv, err := endian.ByName(r.Endian16, 2)
		if err != nil {
			return nil, err
		}
		opts = append(opts, register.WithEndian16(conv))
	}
	if r.Endian32 != "" {
		conv, err := endian.ByName(r.Endian32, 4)
		if err != nil {
			return nil, err
		}
		opts = append(opts, register.WithEndian32(conv))
	}

	return opts, nil
}

func (r *Register) parseValue(text string) (register.Value, error) {
	switch r.kind() {
	case "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: register %q value %q", register.ErrUnsupportedType, r.Name, text)
		}

		return register.NumberValue(f), nil
	case "bytes":
		b, err := parseHex(text)
		if err != nil {
			return nil, fmt.Errorf("%w: register %q value %q", register.ErrUnsupportedType, r.Name, text)
		}

		return register.BytesValue(b), nil
	default:
		return register.StringValue(text), nil
	}
}

// parseHex accepts "0A0B", "0x0A0B" and "0A 0B".
func parseHex(text string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(text), "0x"), " ", ""))
}
