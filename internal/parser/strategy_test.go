package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeAnchorIgnoresBracesInStrings(t *testing.T) {
	text := `noise {"type":"response","body":"use } and { carefully"} trailing`

	env, ok := TypeAnchorStrategy{}.Attempt(text)

	require.True(t, ok)
	assert.Equal(t, "response", env.Type)
	assert.JSONEq(t, `"use } and { carefully"`, string(env.Body))
}

func TestTypeAnchorSkipsUnusableAnchors(t *testing.T) {
	text := `"type": dangling {"type":"quiz","body":[{"question":"Q"}]}`

	env, ok := TypeAnchorStrategy{}.Attempt(text)

	require.True(t, ok)
	assert.Equal(t, "quiz", env.Type)
}

func TestStrategiesDeclineOnMultiplexedText(t *testing.T) {
	text := `{"type":"chitchat","body":"hi"}{"type":"quiz","body":[]}`

	_, ok := BodyFieldStrategy{}.Attempt(text)
	assert.False(t, ok)
	_, ok = TypeAnchorStrategy{}.Attempt(text)
	assert.False(t, ok)
}

func TestDirectRequiresTypeAndBody(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
	}{
		{`{"type":"response","body":"x"}`, true},
		{`{"type":"response"}`, false},
		{`{"body":"x"}`, false},
		{`{"type":"","body":"x"}`, false},
		{`{"type":"response","body":""}`, false},
		{`{"type":"response","body":null}`, false},
		{`[{"type":"response","body":"x"}]`, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, ok := DirectStrategy{}.Attempt(tt.text)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestBodyFieldUnescapes(t *testing.T) {
	env, ok := BodyFieldStrategy{}.Attempt(`{"body": "tab\there é", "type": "response"`)

	require.True(t, ok)
	assert.Equal(t, "response", env.Type)
	assert.JSONEq(t, `"tab\there é"`, string(env.Body))
}

func TestBodyFieldDefaultsType(t *testing.T) {
	env, ok := BodyFieldStrategy{}.Attempt(`{"body":"orphan"`)

	require.True(t, ok)
	assert.Equal(t, "response", env.Type)
}

func TestMatchBrace(t *testing.T) {
	assert.Equal(t, 7, matchBrace(`{"a":{}}  `, 0))
	assert.Equal(t, -1, matchBrace(`{"a":{`, 0))
	assert.Equal(t, 11, matchBrace(`{"a":"\"}{"}x`, 0))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `plain`, stripFences("  plain  "))
}
