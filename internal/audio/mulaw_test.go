package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleRatios(t *testing.T) {
	mu := make([]byte, 160)
	pcm := DecodeMuLawToPCM16k(mu)
	require.Len(t, pcm, 320)

	samples := make([]int16, 320)
	require.Len(t, EncodePCM16kToMuLaw(samples), 160)
	require.Len(t, EncodePCM16kToMuLaw(make([]int16, 321)), 160, "odd lengths floor")
	require.Len(t, EncodePCM8kToMuLaw(samples[:160]), 160)
}

func TestSilenceRoundTrip(t *testing.T) {
	silence := make([]int16, 320)
	mu := EncodePCM16kToMuLaw(silence)
	back := DecodeMuLawToPCM16k(mu)

	for _, s := range back {
		assert.InDelta(t, 0, int(s), 8, "silence should round-trip to near-zero")
	}
}

func TestSineRoundTripWithinQuantizationBound(t *testing.T) {
	// 440 Hz tone at 8 kHz, moderate amplitude.
	n := 800
	src := make([]int16, n)
	for i := range src {
		src[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}

	mu := EncodePCM8kToMuLaw(src)
	require.Len(t, mu, n)

	for i, b := range mu {
		got := decodeTable[b]
		// mu-law segment width grows with amplitude; the worst-case
		// quantization error for a 14-bit codec is half a top segment step.
		diff := math.Abs(float64(got) - float64(src[i]))
		errBound := math.Max(64, math.Abs(float64(src[i]))*0.05)
		require.LessOrEqualf(t, diff, errBound, "sample %d: %d -> %d", i, src[i], got)
	}
}

func TestDecodeEncodeIdentityOnCodebook(t *testing.T) {
	// Every mu-law byte decodes to a sample that encodes back to itself.
	for i := 0; i < 256; i++ {
		code := byte(i)
		sample := decodeTable[code]
		again := encodeTable[int32(sample)+32768]
		// 0x7F and 0xFF both represent zero; accept either.
		if sample == 0 {
			assert.Contains(t, []byte{0x7F, 0xFF}, again)
			continue
		}
		assert.Equalf(t, code, again, "code 0x%02x decoded to %d", code, sample)
	}
}

func TestUpsampleMidpoints(t *testing.T) {
	// Two known codes; the interpolated sample must sit between them.
	data := []byte{0x7F, 0x00}
	pcm := DecodeMuLawToPCM16k(data)
	require.Len(t, pcm, 4)

	a, b := decodeTable[0x7F], decodeTable[0x00]
	assert.Equal(t, a, pcm[0])
	assert.Equal(t, int16((int32(a)+int32(b))/2), pcm[1])
	assert.Equal(t, b, pcm[2])
	assert.Equal(t, b, pcm[3], "last midpoint repeats the final sample")
}
