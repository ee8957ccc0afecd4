package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionFencedJSON(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"answer\": \"Deploys run on Tuesdays.\", \"answered\": true}\n```\nHope that helps."

	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.True(t, d.Answered)
	assert.Equal(t, "Deploys run on Tuesdays.", d.Answer)
}

func TestParseDecisionBareFence(t *testing.T) {
	raw := "```\n{\"answer\": \"\", \"answered\": false}\n```"

	d, err := ParseDecision(raw)
	require.NoError(t, err)
	assert.False(t, d.Answered)
	assert.Empty(t, d.Answer)
}

func TestParseDecisionNoFence(t *testing.T) {
	_, err := ParseDecision(`{"answer": "plain JSON without a fence", "answered": true}`)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrNoFence)
}

func TestParseDecisionInvalidJSON(t *testing.T) {
	_, err := ParseDecision("```json\nthis is prose, not JSON\n```")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestParseDecisionAnsweredNotBoolean(t *testing.T) {
	cases := map[string]string{
		"string": "```json\n{\"answer\": \"x\", \"answered\": \"true\"}\n```",
		"number": "```json\n{\"answer\": \"x\", \"answered\": 1}\n```",
		"null":   "```json\n{\"answer\": \"x\", \"answered\": null}\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidJSON)
		})
	}
}

func TestParseDecisionMissingFields(t *testing.T) {
	_, err := ParseDecision("```json\n{\"answered\": true}\n```")
	require.Error(t, err)

	_, err = ParseDecision("```json\n{\"answer\": \"x\"}\n```")
	require.Error(t, err)
}

func TestParseDecisionUnclosedFence(t *testing.T) {
	_, err := ParseDecision("```json\n{\"answer\": \"x\", \"answered\": true}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFence)
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ParseError{Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("where are the runbooks?")

	assert.True(t, strings.HasSuffix(prompt, "Question: where are the runbooks?"))
	assert.Contains(t, prompt, "```json")
	assert.Contains(t, prompt, `"answered"`)

	// The template's example must itself parse, so a backend that echoes
	// the shape verbatim produces a valid decision.
	d, err := ParseDecision(strings.ReplaceAll(
		strings.ReplaceAll(prompt, "<your concise answer>", "ok"),
		"<true or false>", "true",
	))
	require.NoError(t, err)
	assert.True(t, d.Answered)
}
