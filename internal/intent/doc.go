// Package intent turns a raw question into a ParsedIntent: the typed,
// filtered, confidence-scored representation every downstream stage works
// from.
//
// A parse runs in a fixed order: resolve references against conversation
// state, obtain a base intent from the pluggable Classifier, refine it with
// the conversation's previous intent and current topic, extract and reconcile
// entity mentions, check whether clarification is needed, expand the primary
// intent into its canonical sub-intents, and score confidence. The dialogue
// layer may call MergeFollowUp afterward to fold the previous turn's intent
// into a follow-up question; clarification and confidence are re-evaluated
// when it does.
//
// Confidence starts at BaseConfidence and moves by fixed weights, clamped to
// [0,1]. The score is a deterministic heuristic, not a probability.
package intent
