// Package register decodes and encodes device register values carried in a
// block of wire bytes.
//
// A register describes where its bytes come from (Addressing), how they are
// interpreted (Number, String or Bytes) and which semantic flags it carries.
// Decoded values are handed to an optional Consumer; values to be written are
// pulled from an optional Producer, so the protocol layer never needs to know
// who uses the data.
//
//	reg, _ := register.NewNumber(register.Spec{
//		Name:       "ac_power",
//		Addressing: register.MappedToRegisterData{Offset: 4},
//	}, register.TypeUint16Exp)
//	v, err := reg.GetItemValue(block)
package register
