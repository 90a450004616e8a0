package register

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want Ordering
	}{
		{"number less", NumberValue(1), NumberValue(2), Less},
		{"number equal", NumberValue(2.5), NumberValue(2.5), Equal},
		{"number greater", NumberValue(-1), NumberValue(-2), Greater},
		{"string lexical", StringValue("abc"), StringValue("abd"), Less},
		{"string equal", StringValue("OK"), StringValue("OK"), Equal},
		{"bytes first differing byte", BytesValue{0x01, 0xFF}, BytesValue{0x02, 0x00}, Less},
		{"bytes shorter prefix", BytesValue{0x01}, BytesValue{0x01, 0x00}, Less},
		{"bytes equal", BytesValue{0xAA, 0xBB}, BytesValue{0xAA, 0xBB}, Equal},
		{"bytes greater", BytesValue{0x03}, BytesValue{0x02, 0xFF}, Greater},
		{"mixed kinds", NumberValue(1), StringValue("1"), Incompatible},
		{"nil", nil, NumberValue(1), Incompatible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestLocateInValueList(t *testing.T) {
	list := ValueList{
		{Name: "normal", Tag: "OK", Value: NumberValue(0)},
		{Name: "grid fault", Tag: "Error", Value: NumberValue(102)},
		{Name: "duplicate", Tag: "Alarm", Value: NumberValue(102)},
		{Name: "label", Tag: "OK", Value: StringValue("102")},
	}

	nv, ok := LocateInValueList(list, NumberValue(102))
	require.True(t, ok)
	require.Equal(t, "grid fault", nv.Name)
	require.Equal(t, "Error", nv.Tag)

	nv, ok = list.Locate(StringValue("102"))
	require.True(t, ok)
	require.Equal(t, "label", nv.Name)

	_, ok = list.Locate(NumberValue(7))
	require.False(t, ok)

	_, ok = ValueList(nil).Locate(NumberValue(0))
	require.False(t, ok)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "15", NumberValue(15).String())
	require.Equal(t, "0.25", NumberValue(0.25).String())
	require.Equal(t, "abc", StringValue("abc").String())
	require.Equal(t, "0A FF", BytesValue{0x0A, 0xFF}.String())
	require.Equal(t, "incompatible", Incompatible.String())
}
