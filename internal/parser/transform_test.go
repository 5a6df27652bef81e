package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQuizFieldAliases(t *testing.T) {
	body := json.RawMessage(`[
		{"question":"Capital of France?","options":["Berlin","Paris"],"correctAnswer":"paris","explanation":"It is Paris."},
		{"text":"2+2?","choices":["3","4"],"answer":1,"reason":"Arithmetic."},
		{"prompt":"Pick","options":["a","b"],"correct":7},
		{"options":["only"]}
	]`)

	quiz, err := decodeQuiz(body)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 4)

	q := quiz.Questions
	assert.Equal(t, "Capital of France?", q[0].Question)
	assert.Equal(t, 1, q[0].CorrectAnswer)
	assert.Equal(t, "It is Paris.", q[0].Explanation)

	assert.Equal(t, "2+2?", q[1].Question)
	assert.Equal(t, []string{"3", "4"}, q[1].Options)
	assert.Equal(t, 1, q[1].CorrectAnswer)
	assert.Equal(t, "Arithmetic.", q[1].Explanation)

	assert.Equal(t, "Pick", q[2].Question)
	assert.Equal(t, 0, q[2].CorrectAnswer)

	assert.Equal(t, "Question 4", q[3].Question)
	assert.Equal(t, noExplanation, q[3].Explanation)
	assert.Equal(t, 4, q[3].ID)
}

func TestDecodeQuizWrappedAndEncoded(t *testing.T) {
	quiz, err := decodeQuiz(json.RawMessage(`{"questions":[{"question":"Q"}]}`))
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 1)

	encoded, _ := json.Marshal(`[{"question":"Q1"},{"question":"Q2"}]`)
	quiz, err = decodeQuiz(encoded)
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 2)

	_, err = decodeQuiz(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, errNoQuestions)

	_, err = decodeQuiz(json.RawMessage(`"prose"`))
	assert.Error(t, err)
}

func TestAnswerIndex(t *testing.T) {
	options := []string{"Mitochondria", "Nucleus", "Ribosome"}
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"index", `2`, 2},
		{"out of range", `5`, 0},
		{"negative", `-1`, 0},
		{"substring of option", `"nucleus"`, 1},
		{"option inside answer", `"The Ribosome"`, 2},
		{"no match", `"Golgi"`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, answerIndex(json.RawMessage(tt.raw), options))
		})
	}
	assert.Equal(t, 0, answerIndex(nil, options))
	assert.Equal(t, 0, answerIndex(json.RawMessage(`"x"`), nil))
}

func TestDecodeFlashcardShapes(t *testing.T) {
	cards, err := decodeFlashcards(json.RawMessage(`{"flashcards":[{"front":"ATP","back":"Energy currency"},{"front":"DNA","back":"Genetic material"}]}`))
	require.NoError(t, err)
	require.Len(t, cards.Cards, 2)
	assert.Equal(t, "ai-2", cards.Cards[1].ID)
	assert.Equal(t, "DNA", cards.Cards[1].Front)
	assert.Equal(t, []string{"AI Generated", "Study Cards"}, cards.Cards[1].Tags)

	cards, err = decodeFlashcards(json.RawMessage(`{"notes":["first", {"note":"second"}, {"note":""}]}`))
	require.NoError(t, err)
	require.Len(t, cards.Cards, 2)
	assert.Equal(t, "Study Note 2", cards.Cards[1].Front)
	assert.Equal(t, "second", cards.Cards[1].Back)

	cards, err = decodeFlashcards(json.RawMessage(`[{"front":"F","back":"B"},{"note":"N"}]`))
	require.NoError(t, err)
	require.Len(t, cards.Cards, 2)
	assert.Equal(t, "F", cards.Cards[0].Front)
	assert.Equal(t, "Study Note 2", cards.Cards[1].Front)

	_, err = decodeFlashcards(json.RawMessage(`{"notes":[]}`))
	assert.ErrorIs(t, err, errNoCards)
}

func TestOrderedKeys(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, orderedKeys(json.RawMessage(`{"b":{"x":1},"a":[1,2],"c":"s"}`)))
	assert.Nil(t, orderedKeys(json.RawMessage(`[1]`)))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "just text", "just text"},
		{"response envelope", `{"type":"response","body":"**hi**"}`, "**hi**"},
		{"quiz", `{"type":"quiz","body":[{"question":"a"},{"question":"b"}]}`, "Quiz: 2 questions"},
		{"undecodable quiz", `{"type":"quiz","body":"x"}`, "Quiz: 0 questions"},
		{"flashnotes", `{"type":"flashnotes","body":{"notes":[{"note":"a"}]}}`, "Flashnotes: 1 notes"},
		{"malformed", `{"type":"response","body":`, `{"type":"response","body":`},
		{"no body", `{"type":"response"}`, `{"type":"response"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.content))
		})
	}
}
