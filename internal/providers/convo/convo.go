// Package convo is the boundary to the conversational brain. The
// engine treats it as a black box: given the transcript so far and the
// respondent's latest utterance, produce the next thing to say; at the
// end, extract structured answers. Prompting lives behind this
// interface, not in the call engine.
package convo

import "context"

// EndToken embedded anywhere in a reply signals end-of-survey.
const EndToken = "[SURVEY_COMPLETE]"

// Turn is one transcript entry as the brain sees it.
type Turn struct {
	Role string // "interviewer" or "respondent"
	Text string
}

type Provider interface {
	// Respond produces the interviewer's next utterance. A reply
	// containing EndToken means the survey is finished.
	Respond(ctx context.Context, history []Turn, utterance string) (string, error)

	// Extract produces structured answers from the completed transcript.
	Extract(ctx context.Context, history []Turn) (map[string]any, error)
}
