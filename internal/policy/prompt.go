// Package policy builds the confidence-gated prompt sent to tenant AI
// backends and interprets their semi-structured replies.
package policy

import (
	"fmt"
)

const promptTemplate = `You are answering a question on behalf of a support team.

Answer the question below concisely using only the knowledge available to you.
If you are uncertain, would have to guess, would refuse, or simply do not know,
you must set "answered" to false and leave your uncertainty out of the answer.

Respond with ONLY a JSON object of this exact shape, inside a json code fence,
with no prose before or after it:

` + "```json" + `
{"answer": "<your concise answer>", "answered": <true or false>}
` + "```" + `

Question: %s`

// BuildPrompt wraps raw user text in the fixed instruction template that
// directs the backend to self-report confidence.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}
