package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []byte
		wantLen int
		wantPad byte
	}{
		{name: "empty", in: nil, wantLen: 16, wantPad: 16},
		{name: "one byte", in: []byte{1}, wantLen: 16, wantPad: 15},
		{name: "fifteen", in: make([]byte, 15), wantLen: 16, wantPad: 1},
		{name: "aligned", in: make([]byte, 16), wantLen: 32, wantPad: 16},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pad(tt.in, 16)
			assert.Len(t, got, tt.wantLen)
			for _, b := range got[len(tt.in):] {
				assert.Equal(t, tt.wantPad, b)
			}

			stripped, ok := unpad(got, 16)
			assert.True(t, ok)
			assert.Equal(t, len(tt.in), len(stripped))
		})
	}
}

func TestPad_DoesNotAliasInput(t *testing.T) {
	in := make([]byte, 3, 16)
	_ = pad(in, 16)
	assert.Equal(t, []byte{0, 0, 0}, in[:3])
	assert.Equal(t, byte(0), in[:4][3])
}

func TestUnpad_Invalid(t *testing.T) {
	t.Parallel()

	block := func(last ...byte) []byte {
		b := make([]byte, 16-len(last))
		return append(b, last...)
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "not aligned", in: make([]byte, 15)},
		{name: "zero pad byte", in: block(0)},
		{name: "pad byte beyond block", in: block(17)},
		{name: "inconsistent run", in: block(3, 2, 3)},
		{name: "run too short", in: block(1, 4, 4, 4)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := unpad(tt.in, 16)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}
