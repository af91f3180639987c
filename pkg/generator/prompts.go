package generator

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt fixes the assistant's domain specialization
const DefaultSystemPrompt = "You are an expert assistant specialized in lab automation with the Opentrons OT-2 robot. " +
	"Generate full, clean and functional Python code for lab automation protocols."

// SynthesisMessages builds the first prompt of a session: retrieved context
// followed by the literal query
func (g *Generator) SynthesisMessages(contexts []string, query string) []Message {
	prompt := fmt.Sprintf(`
Context information is below.
---------------------
%s
---------------------
Given the context information and/or prior knowledge, answer the query.
Query: %s
`, strings.Join(contexts, "\n\n"), query)

	return g.withSystem(prompt)
}

// RepairMessages builds the prompt used after a failed simulation
func (g *Generator) RepairMessages(code, stderr, query string) []Message {
	prompt := fmt.Sprintf(`
I have some errors :
%s

Please correct accordingly this code you've given me :
%s

For the query : %s
And return the full corrected Python script, don't ask me to complete the code, don't ask me specific informations, always return a python code`, stderr, code, query)

	return g.withSystem(prompt)
}

// VerifyMessages builds the judgment prompt of the verifier
func (g *Generator) VerifyMessages(code, query string) []Message {
	prompt := fmt.Sprintf(`
You are an expert lab assistant in Python scripts for Opentrons laboratory robots.

Here is a Python script :
`+"```python\n%s\n```"+`

And this is what the user requested : "%s"

Does this script match what the user requested ? Just in a general point of view, we don't need a precise comparison.
Answer strictly with "Yes" or "No", followed by a short explanation.
If the answer is no, ALWAYS suggest a corrected script right after.
`, code, query)

	return g.withSystem(prompt)
}

func (g *Generator) withSystem(user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: g.systemPrompt},
		{Role: RoleUser, Content: user},
	}
}
