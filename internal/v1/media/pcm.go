package media

import "encoding/binary"

const pcmBytesPerSample = 2

// Float32ToPCM16 converts normalized samples to little-endian signed 16-bit
// PCM. Samples outside [-1, 1] are clamped before scaling so a hot input
// block cannot wrap around into noise.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*pcmBytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*pcmBytesPerSample:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 converts little-endian signed 16-bit PCM back to
// normalized samples. A trailing odd byte is ignored.
func PCM16ToFloat32(data []byte) []float32 {
	n := len(data) / pcmBytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*pcmBytesPerSample:]))
		out[i] = float32(v) / 32768
	}
	return out
}
