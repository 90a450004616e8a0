package register

import (
	"fmt"

	"github.com/arloliu/go-converse/internal/util"
)

// Bytes is a register holding raw bytes.
type Bytes struct {
	regBase
}

var _ Register = (*Bytes)(nil)

// NewBytes creates a raw byte register.
func NewBytes(spec Spec, opts ...Option) (*Bytes, error) {
	cfg, err := newRegConfig(opts)
	if err != nil {
		return nil, err
	}

	r := &Bytes{}
	if err := r.init(r, spec, 0, cfg.logger); err != nil {
		return nil, err
	}
	if fv, ok := r.fixed(); ok {
		if _, ok := fv.(BytesValue); !ok {
			return nil, fmt.Errorf("%w: fixed value of %q is %T", ErrUnsupportedType, spec.Name, fv)
		}
	}

	return r, nil
}

// SetValue assigns the current value; it must be a BytesValue.
func (r *Bytes) SetValue(v Value) error {
	bv, ok := v.(BytesValue)
	if !ok {
		return fmt.Errorf("%w: register %q expects bytes, got %T", ErrUnsupportedType, r.spec.Name, v)
	}
	r.setCurrent(BytesValue(util.CloneSlice(bv, 0)))

	return nil
}

// GetItemValue implements Register.
func (r *Bytes) GetItemValue(buf []byte) (Value, error) {
	raw, ok, err := r.source(buf)
	if err != nil {
		return nil, err
	}

	var v Value
	if !ok {
		v, _ = r.fixed()
	} else {
		v = BytesValue(util.CloneSlice(raw, 0))
	}
	r.publish(v)

	return v, nil
}

// StoreItemValue implements Register. Shorter values are zero padded to the
// register size.
func (r *Bytes) StoreItemValue(buf []byte) error {
	v, err := r.produce()
	if err != nil {
		return err
	}
	bv, ok := v.(BytesValue)
	if !ok {
		return fmt.Errorf("%w: register %q expects bytes, got %T", ErrUnsupportedType, r.spec.Name, v)
	}
	if _, fixed := r.fixed(); fixed {
		return nil
	}

	data := []byte(bv)
	if r.spec.Size > 0 {
		if len(data) > r.spec.Size {
			return fmt.Errorf("%w: register %q value exceeds %d bytes", ErrOutOfRange, r.spec.Name, r.spec.Size)
		}
		data = util.CloneSlice(data, r.spec.Size)
	}

	return r.sink(buf, data)
}
