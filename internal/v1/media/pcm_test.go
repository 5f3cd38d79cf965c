package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32ToPCM16_Clamping(t *testing.T) {
	out := Float32ToPCM16([]float32{2.0, -2.0, 0, 1.0, -1.0})
	require.Len(t, out, 10)

	decoded := PCM16ToFloat32(out)
	assert.InDelta(t, 1.0, decoded[0], 0.001, "overdriven sample clamps to full scale")
	assert.InDelta(t, -1.0, decoded[1], 0.001)
	assert.InDelta(t, 0.0, decoded[2], 0.001)
}

func TestPCM16Roundtrip(t *testing.T) {
	in := []float32{0.5, -0.25, 0.125, -0.9}
	out := PCM16ToFloat32(Float32ToPCM16(in))
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 0.001)
	}
}

func TestPCM16ToFloat32_OddTrailingByte(t *testing.T) {
	out := PCM16ToFloat32([]byte{0x00, 0x40, 0xFF})
	assert.Len(t, out, 1)
}
