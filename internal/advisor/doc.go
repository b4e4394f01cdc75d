// Package advisor is the entry point of the retrieval-and-reasoning core.
//
// Service wires the query interpreter, embedding provider, vector index,
// memory model, drift analyzer, eligibility rules and answer synthesizer into
// the four call-shaped operations callers use:
//
//   - AnswerQuery interprets a question, searches with progressive
//     relaxation, re-ranks with the memory model and renders a cited answer.
//   - AnalyzeDrift reports year-over-year drift of one policy.
//   - CheckEligibility matches a profile against the loaded rule set.
//   - RebaseWeights recomputes every chunk's time-decay baseline.
//
// Every operation returns a well-formed result for empty or sparse data.
// Errors are reserved for structurally invalid input and backend failures.
package advisor
