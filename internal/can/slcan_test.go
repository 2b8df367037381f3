package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSLCAN(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"standard", Frame{Address: 0x415, Data: []byte{0x11, 0x22, 0xAB}}, "t4153 1122AB"},
		{"empty", Frame{Address: 0x83}, "t0830"},
		{"extended", Frame{Address: 0x1BADCAFE, Data: []byte{0x01}}, "T1BADCAFE101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeSLCAN(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, removeSpaces(tt.want), got)
		})
	}
}

func removeSpaces(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func TestParseSLCAN(t *testing.T) {
	f, err := ParseSLCAN("t4153112233\r", 0)
	require.NoError(t, err)
	assert.Equal(t, Frame{Address: 0x415, Bus: 0, Data: []byte{0x11, 0x22, 0x33}}, f)

	// trailing timestamp is accepted and dropped
	f, err = ParseSLCAN("t19F1AA1234", 1)
	require.NoError(t, err)
	assert.Equal(t, Frame{Address: 0x19F, Bus: 1, Data: []byte{0xAA}}, f)

	f, err = ParseSLCAN("T1BADCAFE0", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1BADCAFE), f.Address)
	assert.Empty(t, f.Data)
}

func TestParseSLCAN_Invalid(t *testing.T) {
	for _, line := range []string{
		"",
		"z",
		"r1230",
		"t12",
		"tXYZ0",
		"t1239",
		"t1232AA",
		"t1231ZZ",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseSLCAN(line, 0)
			assert.ErrorIs(t, err, ErrInvalidLine)
		})
	}
}

func TestSLCAN_RoundTrip(t *testing.T) {
	in := Frame{Address: 0x3A8, Bus: 2, Data: []byte{0, 1, 2, 3, 4, 5, 6, 7}}
	line, err := EncodeSLCAN(in)
	require.NoError(t, err)
	out, err := ParseSLCAN(line, 2)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
