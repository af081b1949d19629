// Package dialogue orchestrates one turn end to end: parse the question,
// fold in follow-up context or switch topics, short-circuit to a
// clarification exchange when the parse is too ambiguous to route, otherwise
// fan the intent out through the router and commit the merged answer.
//
// A turn moves through the states Received, ReferenceResolved, IntentParsed,
// and then one of two terminal paths: ClarificationNeeded ending in
// AskedClarification, or Routed and ResponsesMerged ending in Answered. Both
// paths append the turn, so history records clarification exchanges too.
//
// ProcessTurn must be serialized per conversation by the caller; distinct
// conversations are safe to process in parallel.
package dialogue
