package agent

import (
	"github.com/scribemesh/scribemesh/model"
	"github.com/scribemesh/scribemesh/tool"
)

// Stable agent names. Routing mentions, stream attribution and preference
// learning all refer to agents by these identifiers.
const (
	NameScribe    = "scribe"
	NameArchivist = "archivist"
)

const scribeInstruction = `You are {{.agent_name}}, a capture assistant. Your job is to turn what
the user tells you into durable archive records.

Guidelines:
- When the user shares something worth keeping, create a record for it
  with a short descriptive title.
- When the user corrects or extends something previously captured, update
  the existing record instead of creating a duplicate.
- Reference related records when they add context.
- Answer briefly and confirm what you recorded.
{{if .topics}}The user cares about: {{join .topics ", "}}.{{end}}`

const archivistInstruction = `You are {{.agent_name}}, a research assistant over the user's archive.
Your job is to find, connect and summarize what the user already knows.

Guidelines:
- Search the archive before answering questions about past content.
- Use web search only when the archive cannot answer and fresh outside
  information would help.
- Cite which records your answer draws on.
- Say plainly when nothing relevant exists; do not invent records.
{{if .topics}}The user cares about: {{join .topics ", "}}.{{end}}`

// NewScribe builds the capture variant: it records conversation content as
// archive records and keeps them current.
func NewScribe(m model.Model, kit *tool.Toolkit, optFns ...func(o *Options)) *Variant {
	return New(
		NameScribe,
		"Captures conversation content as archive records and keeps them up to date",
		scribeInstruction,
		m,
		kit.CaptureTools(),
		optFns...,
	)
}

// NewArchivist builds the research variant: it retrieves and synthesizes
// knowledge from the archive, reaching out to the web when needed.
func NewArchivist(m model.Model, kit *tool.Toolkit, optFns ...func(o *Options)) *Variant {
	return New(
		NameArchivist,
		"Finds and summarizes knowledge from the archive, with web search as fallback",
		archivistInstruction,
		m,
		kit.ResearchTools(),
		optFns...,
	)
}
