package turnpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLikelyEcho(t *testing.T) {
	recent := []string{"Thank you for your time today", "Aap kaun si party ko vote denge?"}

	tests := []struct {
		name      string
		utterance string
		want      bool
	}{
		{"prefix match of spoken sentence", "thank you for your time", true},
		{"fragment inside spoken text", "si party ko vote", true},
		{"single character never echo", "a", false},
		{"unrelated answer", "I will vote for the local candidate", false},
		{"short fragment below threshold", "for", false},
		{"case and whitespace insensitive", "  THANK YOU FOR your time  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLikelyEcho(tt.utterance, recent))
		})
	}
}

func TestIsLikelyEchoIgnoresShortSpokenText(t *testing.T) {
	// Spoken context shorter than the prefix window cannot produce echoes.
	assert.False(t, IsLikelyEcho("hello there friend", []string{"hello"}))
}

func TestIsBackchannel(t *testing.T) {
	tests := []struct {
		utterance string
		want      bool
	}{
		{"haan haan", true},
		{"mm hmm", true},
		{"theek hai", true},
		{"accha", true},
		{"ji haan bilkul", true},
		{"okay.", true},
		{"I disagree with that", false},
		{"haan but only sometimes", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBackchannel(tt.utterance))
		})
	}
}

func TestIsHesitation(t *testing.T) {
	tests := []struct {
		utterance string
		want      bool
	}{
		{"um", true},
		{"uhhh", true},
		{"hmmmm...", true},
		{"matlab", true},
		{"ek minute", true},
		{"ummmmmmmmmmmmmmmm", false}, // over the 12 char cap
		{"umbrella", false},
		{"I think the roads are bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHesitation(tt.utterance))
		})
	}
}

func TestIsRepeatRequest(t *testing.T) {
	tests := []struct {
		utterance string
		want      bool
	}{
		{"can you repeat that", true},
		{"sorry I didn't hear you", true},
		{"what?", true},
		{"phir se boliye", true},
		{"samajh nahi aaya", true},
		{"kya bola aapne", true},
		{"the roads are fine", false},
		{"what is your name", false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRepeatRequest(tt.utterance))
		})
	}
}
