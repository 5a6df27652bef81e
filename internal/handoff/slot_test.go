package handoff

import (
	"testing"

	"distill-client/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiz(name string) model.Handoff {
	return model.Handoff{
		Kind: model.HandoffQuiz,
		Quiz: &model.QuizPayload{Name: name, Questions: []model.QuizQuestion{{ID: 1, Question: "Q"}}},
	}
}

func TestPutOverwritesSameKind(t *testing.T) {
	s := NewSlot()
	s.Put(quiz("first"))
	s.Put(quiz("second"))

	h, ok := s.Take(model.HandoffQuiz)
	require.True(t, ok)
	assert.Equal(t, "second", h.Quiz.Name)

	_, ok = s.Take(model.HandoffQuiz)
	assert.False(t, ok)
}

func TestKindsAreIndependent(t *testing.T) {
	s := NewSlot()
	s.Put(quiz("q"))
	s.Put(model.Handoff{Kind: model.HandoffFlashcards, Flashcards: &model.FlashcardPayload{Name: "f"}})

	assert.Equal(t, []model.HandoffKind{model.HandoffQuiz, model.HandoffFlashcards}, s.Pending())

	s.Dismiss(model.HandoffQuiz)
	_, ok := s.Peek(model.HandoffQuiz)
	assert.False(t, ok)

	h, ok := s.Peek(model.HandoffFlashcards)
	require.True(t, ok)
	assert.Equal(t, "f", h.Flashcards.Name)

	_, ok = s.Peek(model.HandoffFlashcards)
	assert.True(t, ok)
}

func TestOnPutNotifies(t *testing.T) {
	s := NewSlot()
	var got []model.HandoffKind
	s.OnPut(func(k model.HandoffKind) { got = append(got, k) })

	s.Put(quiz("q"))
	assert.Equal(t, []model.HandoffKind{model.HandoffQuiz}, got)
}
