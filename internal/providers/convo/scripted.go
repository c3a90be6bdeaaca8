package convo

import (
	"context"
	"errors"
	"strconv"
)

var ErrEmptyCompletion = errors.New("convo: provider returned no completion")

// Scripted walks a fixed question list in order, one question per
// respondent turn. The call engine uses it as the deterministic
// fallback when the real provider fails twice; tests use it directly.
type Scripted struct {
	Greeting  string
	Questions []string
	Closing   string
}

// NextQuestion returns the scripted utterance for a session that has
// already spoken n interviewer turns (greeting counts as turn zero).
func (s *Scripted) NextQuestion(n int) string {
	if n <= 0 {
		return s.Greeting
	}
	idx := n - 1
	if idx >= len(s.Questions) {
		return s.Closing + " " + EndToken
	}
	return s.Questions[idx]
}

func (s *Scripted) Respond(_ context.Context, history []Turn, _ string) (string, error) {
	spoken := 0
	for _, t := range history {
		if t.Role == "interviewer" {
			spoken++
		}
	}
	return s.NextQuestion(spoken), nil
}

func (s *Scripted) Extract(_ context.Context, history []Turn) (map[string]any, error) {
	// Pair each question with the first respondent turn that follows it.
	answers := map[string]any{}
	qi := -1
	for _, t := range history {
		switch t.Role {
		case "interviewer":
			qi++
		case "respondent":
			if qi >= 0 && qi <= len(s.Questions) {
				key := "q" + strconv.Itoa(qi)
				if _, seen := answers[key]; !seen {
					answers[key] = t.Text
				}
			}
		}
	}
	return answers, nil
}
