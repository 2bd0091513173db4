// Package core provides the foundational domain types and interfaces used by
// roundtable. It defines the core abstractions for:
//
//   - Messages (immutable addressed text exchanged between agents)
//   - Agents (identity-bearing units reacting to one message at a time)
//   - Memory windows and snapshots (bounded per-agent recall)
//   - Sessions (per-run transcripts) and artifacts (documents produced by runs)
//   - Pluggable stores and observers (persistence, live event relay)
//
// The package intentionally keeps implementation concerns (mailbox, dispatch
// loop, concrete agents, storage backends) out of scope, exposing small
// interfaces so backends and transports can be swapped at wiring time.
package core
