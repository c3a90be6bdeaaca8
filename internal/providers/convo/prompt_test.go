package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
)

var sampleQuestions = []models.Question{
	{ID: "q1", Prompt: "Kya aap is yojana se santusht hain?", Options: []string{"haan", "nahin"}},
	{ID: "q2", Prompt: "Aapke gaon mein paani ki supply kaisi hai?"},
}

func TestSurveySystemPrompt(t *testing.T) {
	p := SurveySystemPrompt("Jal Shakti", "hi-IN", sampleQuestions)

	assert.Contains(t, p, "Jal Shakti")
	assert.Contains(t, p, "Hindi")
	assert.Contains(t, p, EndToken)
	for _, q := range sampleQuestions {
		assert.Contains(t, p, q.Prompt)
	}
	assert.Contains(t, p, "(options: haan, nahin)")
}

func TestExtractionPromptListsQuestionIDs(t *testing.T) {
	p := ExtractionPrompt(sampleQuestions)
	assert.Contains(t, p, "q1:")
	assert.Contains(t, p, "q2:")
}

func TestScriptForLanguages(t *testing.T) {
	hi := ScriptFor("Jal Shakti", "hi-IN", sampleQuestions)
	require.Len(t, hi.Questions, 2)
	assert.Contains(t, hi.Greeting, "Namaste")
	assert.Contains(t, hi.Greeting, "Jal Shakti")

	en := ScriptFor("Jal Shakti", "en-IN", sampleQuestions)
	assert.Contains(t, en.Greeting, "Hello")
	assert.NotEmpty(t, en.Closing)
}
