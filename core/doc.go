// Package core provides the foundational domain types and collaborator
// interfaces used by scribemesh. It defines:
//
//   - Turns, Conversations and ArchiveRecords (the durable audit trail)
//   - ToolInvocations (correlated tool progress records)
//   - StreamEvents (the ordered live progress channel)
//   - Requests / Results (the inbound and final contracts)
//   - Narrow interfaces for external collaborators (persistence, search,
//     web search, transcription, embeddings)
//
// The package intentionally keeps implementation concerns (storage backends,
// pipeline orchestration, concrete agents) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
