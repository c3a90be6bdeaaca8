package audio

import "encoding/binary"

// PCMToBytes serializes samples as little-endian 16-bit, the layout
// the recognizer stream expects.
func PCMToBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// BytesToPCM parses little-endian 16-bit samples. A trailing odd byte
// is dropped.
func BytesToPCM(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
