// Package audio converts between the carrier's 8 kHz mu-law telephony
// format and the 16 kHz linear PCM the speech providers consume.
package audio

const (
	muLawBias = 0x84
	muLawClip = 32635
)

var (
	decodeTable [256]int16
	encodeTable [65536]byte
)

func init() {
	for i := 0; i < 256; i++ {
		decodeTable[i] = decodeMuLawSample(byte(i))
	}
	for i := 0; i < 65536; i++ {
		encodeTable[i] = encodeMuLawSample(int16(i - 32768))
	}
}

func decodeMuLawSample(code byte) int16 {
	code = ^code
	sign := code & 0x80
	exponent := (code >> 4) & 0x07
	mantissa := code & 0x0F

	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

func encodeMuLawSample(sample int16) byte {
	var sign byte
	s := int32(sample)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	// highest set bit above the mantissa determines the segment
	exponent := byte(7)
	for mask := int32(0x4000); mask != 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

// DecodeMuLawToPCM16k decodes 8 kHz mu-law bytes into 16 kHz linear
// PCM, upsampling 2x with midpoint interpolation. N input bytes yield
// exactly 2N samples.
func DecodeMuLawToPCM16k(data []byte) []int16 {
	if len(data) == 0 {
		return nil
	}

	out := make([]int16, 2*len(data))
	for i, b := range data {
		cur := decodeTable[b]
		out[2*i] = cur

		if i+1 < len(data) {
			next := decodeTable[data[i+1]]
			out[2*i+1] = int16((int32(cur) + int32(next)) / 2)
		} else {
			out[2*i+1] = cur
		}
	}
	return out
}

// EncodePCM16kToMuLaw downsamples 16 kHz PCM to 8 kHz by taking every
// other sample, then mu-law encodes. M input samples yield floor(M/2)
// bytes.
func EncodePCM16kToMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples)/2)
	for i := range out {
		out[i] = encodeTable[int32(samples[2*i])+32768]
	}
	return out
}

// EncodePCM8kToMuLaw encodes audio that is already at 8 kHz, without
// resampling.
func EncodePCM8kToMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeTable[int32(s)+32768]
	}
	return out
}
