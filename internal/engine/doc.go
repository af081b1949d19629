// Package engine exposes the conversation engine's single entry point: Ask,
// GetHistory, CreateConversation, SwitchConversation, ClearHistory, and the
// ExportContext/ImportContext persistence hooks. Only two structural
// failures reach callers as errors: an unknown conversation id and a
// malformed snapshot. Everything else folds into the Reply's confidence.
package engine
