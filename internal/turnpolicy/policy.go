// Package turnpolicy classifies recognized utterances on a live call.
//
// Telephony STT produces frequent false "final" transcripts: the
// system's own synthesized voice leaking back through the line, or
// conversational filler that must not be treated as an answer. These
// classifiers gate what reaches the conversation layer. They are pure
// functions over normalized text so they can be tested in isolation.
package turnpolicy

import (
	"regexp"
	"strings"
)

const (
	echoPrefixLen   = 12
	echoFragmentLen = 8
)

// backchannelTokens are short acknowledgments in the languages we
// survey in (Hindi/Hinglish plus English). They indicate listening,
// not answering.
var backchannelTokens = map[string]struct{}{
	"haan": {}, "haanji": {}, "han": {}, "ha": {}, "ji": {}, "ji haan": {},
	"accha": {}, "acha": {}, "achha": {}, "theek": {}, "theek hai": {}, "thik hai": {},
	"sahi": {}, "sahi hai": {}, "bilkul": {}, "hmm": {}, "mm": {}, "mm hmm": {},
	"mhm": {}, "uh huh": {}, "yes": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {},
	"right": {}, "sure": {}, "alright": {}, "got it": {}, "i see": {},
}

var hesitationTokens = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "hmm": {}, "umm": {}, "uhh": {},
	"matlab": {}, "woh": {}, "wo": {}, "kya": {}, "ek minute": {}, "ek second": {},
	"let me think": {}, "one second": {}, "one minute": {}, "hold on": {},
}

var hesitationPattern = regexp.MustCompile(`^(u+m+|u+h+|e+r+|a+h+|h+m+)[.,!? ]*$`)

var repeatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(repeat|say (that|it) again|come again|pardon)\b`),
	regexp.MustCompile(`\b(didn'?t|did not|couldn'?t|could not) (hear|catch|understand|get)\b`),
	regexp.MustCompile(`\bwhat did you say\b`),
	regexp.MustCompile(`^(what|sorry|huh|eh)\??$`),
	regexp.MustCompile(`\b(phir se|dobara|dubara|wapas) (bol|kah|pooch|puch)`),
	regexp.MustCompile(`\bsamajh (nahi|nahin) (aaya|aya)\b`),
	regexp.MustCompile(`\bsunai (nahi|nahin) (diya|de raha)\b`),
	regexp.MustCompile(`\bkya (bola|kaha|pucha|poocha)\b`),
}

// Normalize lowercases and trims an utterance for classification.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsLikelyEcho reports whether the utterance is probably the system's
// own speech picked up by the microphone. It matches either a leading
// 12-character prefix of a recently spoken sentence, or a fragment of
// 8+ characters appearing inside recently spoken text. Utterances
// shorter than 2 characters are never echoes.
func IsLikelyEcho(utterance string, recentSpoken []string) bool {
	u := Normalize(utterance)
	if len(u) < 2 {
		return false
	}

	for _, spoken := range recentSpoken {
		s := Normalize(spoken)
		if len(s) < echoPrefixLen {
			continue
		}
		if len(u) >= echoPrefixLen && strings.HasPrefix(s, u[:echoPrefixLen]) {
			return true
		}
		if len(u) >= echoFragmentLen && strings.Contains(s, u) {
			return true
		}
	}
	return false
}

// IsBackchannel reports whether the utterance is a pure acknowledgment
// ("haan haan", "mm hmm") rather than an answer. Up to three words are
// tolerated as long as every word is itself an acknowledgment token.
func IsBackchannel(utterance string) bool {
	u := strings.Trim(Normalize(utterance), ".,!? ")
	if u == "" {
		return false
	}
	if _, ok := backchannelTokens[u]; ok {
		return true
	}

	words := strings.Fields(u)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if _, ok := backchannelTokens[strings.Trim(w, ".,!?")]; !ok {
			return false
		}
	}
	return true
}

// IsHesitation reports whether the utterance is thinking-out-loud
// filler that should extend, not consume, the respondent's turn.
func IsHesitation(utterance string) bool {
	u := strings.Trim(Normalize(utterance), ".,!? ")
	if u == "" {
		return false
	}
	if _, ok := hesitationTokens[u]; ok {
		return true
	}
	return len(u) < 12 && hesitationPattern.MatchString(u)
}

// IsRepeatRequest reports whether the respondent asked for the last
// question again.
func IsRepeatRequest(utterance string) bool {
	u := Normalize(utterance)
	if u == "" {
		return false
	}
	for _, p := range repeatPatterns {
		if p.MatchString(u) {
			return true
		}
	}
	return false
}
