// Package tts is the speech-synthesis provider client. One HTTP POST
// per utterance; the provider answers with raw linear PCM. Retry
// policy is the caller's concern, not this package's.
package tts

import "context"

// FrameSize is ~20 ms of 8 kHz mu-law, the carrier's playout unit.
const FrameSize = 160

// SampleRate is the PCM rate requested from the provider.
const SampleRate = 8000

type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voiceID string) ([]byte, error)
}

// Chunk splits encoded telephony audio into fixed-size frames for
// paced streaming. The last frame may be shorter.
func Chunk(audio []byte, frameSize int) [][]byte {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	if len(audio) == 0 {
		return nil
	}

	frames := make([][]byte, 0, (len(audio)+frameSize-1)/frameSize)
	for off := 0; off < len(audio); off += frameSize {
		end := off + frameSize
		if end > len(audio) {
			end = len(audio)
		}
		frames = append(frames, audio[off:end])
	}
	return frames
}
