package convo

import (
	"strings"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
)

// SurveySystemPrompt renders the interviewer instructions for one
// campaign. The engine never sees this text; it only sees replies.
func SurveySystemPrompt(campaignName, language string, questions []models.Question) string {
	var b strings.Builder
	b.WriteString("You are a polite phone interviewer conducting the \"")
	b.WriteString(campaignName)
	b.WriteString("\" survey.\n")
	b.WriteString("Speak in ")
	b.WriteString(languageName(language))
	b.WriteString(", in short spoken sentences suitable for a phone line. ")
	b.WriteString("If the respondent switches language, follow them.\n")
	b.WriteString("Ask exactly one question per turn, in order. ")
	b.WriteString("Acknowledge the answer briefly before the next question. ")
	b.WriteString("If an answer is unclear, ask once for clarification, then move on.\n\nQuestions:\n")
	for _, q := range questions {
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(q.Prompt))
		if len(q.Options) > 0 {
			b.WriteString(" (options: ")
			b.WriteString(strings.Join(q.Options, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAfter the last answer, thank the respondent and append the exact token ")
	b.WriteString(EndToken)
	b.WriteString(" to your reply. Never say the token aloud before the survey is done.")
	return b.String()
}

// ExtractionPrompt asks for the completed transcript to be reduced to
// a JSON object keyed by question id.
func ExtractionPrompt(questions []models.Question) string {
	var b strings.Builder
	b.WriteString("The survey is over. Reply with a single JSON object mapping each question id to the respondent's answer. ")
	b.WriteString("Use null for questions that were not answered. The ids are:\n")
	for _, q := range questions {
		b.WriteString(" ")
		b.WriteString(q.ID)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(q.Prompt))
		b.WriteString("\n")
	}
	return b.String()
}

// ScriptFor builds the deterministic question walk used when the
// conversational provider is unavailable.
func ScriptFor(campaignName, language string, questions []models.Question) *Scripted {
	prompts := make([]string, 0, len(questions))
	for _, q := range questions {
		prompts = append(prompts, strings.TrimSpace(q.Prompt))
	}

	s := &Scripted{Questions: prompts}
	switch baseLanguage(language) {
	case "hi":
		s.Greeting = "Namaste! Main " + campaignName + " survey ke liye call kar rahi hoon. Kya aap do minute baat kar sakte hain?"
		s.Closing = "Aapke samay ke liye bahut dhanyavaad."
	default:
		s.Greeting = "Hello! I am calling for the " + campaignName + " survey. Could you spare two minutes?"
		s.Closing = "Thank you very much for your time."
	}
	return s
}

func baseLanguage(language string) string {
	if i := strings.IndexByte(language, '-'); i > 0 {
		return strings.ToLower(language[:i])
	}
	return strings.ToLower(language)
}

func languageName(language string) string {
	switch baseLanguage(language) {
	case "hi":
		return "Hindi"
	case "bn":
		return "Bengali"
	case "ta":
		return "Tamil"
	case "en":
		return "English"
	default:
		return "the respondent's language"
	}
}
