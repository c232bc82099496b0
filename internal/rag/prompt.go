package rag

import (
	"fmt"
	"strings"
)

const promptPreamble = "You are a code assistant that analyses and explains source code. " +
	"Answer the question using the retrieved project context below.\n\n"

var promptInstructions = []string{
	"Base the answer on the context above.",
	"When code is involved, refer to the specific snippets.",
	"If the context is not enough to answer, say so plainly.",
	"Keep the answer concise and focused.",
	"Answer in the language of the question.",
}

// BuildPrompt wraps the context text and the query, both verbatim, into an
// instruction prompt.
func BuildPrompt(query string, c Context) string {
	var sb strings.Builder
	sb.WriteString(promptPreamble)

	sb.WriteString("## Context\n")
	sb.WriteString(c.Text)
	sb.WriteString("\n\n")

	sb.WriteString("## Question\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("## Instructions\n")
	for i, line := range promptInstructions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
	}
	sb.WriteString("\nAnswer:")
	return sb.String()
}
