// Package editor implements generation orchestration for a co-authoring
// editor.
//
// A generation streams one candidate continuation into a document while the
// remaining candidates are fetched in parallel. Once every candidate has
// arrived and the streamed text has finished typing, the user reviews the
// candidates in place, cycling between them before accepting one.
//
// The package is built from four parts:
//
//   - [Machine]: the lifecycle state machine (idle, generating, reviewing,
//     error) and its per-generation [Context].
//   - [Coordinator]: one streaming request plus N-1 parallel complete
//     requests, failing fast and returning candidates in index order.
//   - [Playback]: a typewriter queue draining streamed runes into the
//     document at a fixed cadence.
//   - [SwitchCandidate] and [Holds]: range bookkeeping for swapping
//     candidates of different lengths.
//
// [Orchestrator] owns all of them on a single goroutine. Intents, streamed
// tokens, fetch results and playback ticks are serialized through its loop,
// so no component shares mutable state with another.
package editor
