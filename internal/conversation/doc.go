// Package conversation owns dialogue state: conversations, turns, entities,
// and the reference resolver that rewrites anaphora against recent entities.
//
// # Store
//
// The Store is the single owner of every Conversation. Other components read
// conversation state and mutate it only through Store operations:
//
//	store := conversation.NewStore(logger)
//	conv := store.Create("alice")
//	err := store.AppendTurn(conv.ID, turn)
//
// Key operations:
//
//   - Create(userID): start a conversation (empty user falls back to "default")
//   - Get(id) / GetHistory(id, limit): read state; unknown ids return ErrNotFound
//   - AppendTurn(id, turn): commit a completed turn, promote its intent,
//     merge its entities, trim to the 100-turn cap
//   - Clear(id) / Delete(id): reset or destroy a conversation
//   - Export(id) / Import(snapshot): full-state snapshots for external
//     persistence; the Store itself holds nothing durable
//
// # Turn lifecycle
//
// Turns are immutable once appended. The sequence is capped at 100; when a
// new turn exceeds the cap the oldest turns are trimmed from the front, so
// the retained window is always the most recent turns in original order.
//
// # Entities and expiry
//
// Entities are keyed by lowercase display name. Appending a turn that
// mentions an entity refreshes its last-seen timestamp. An entity untouched
// for 30 minutes is expired: reference resolution and recency queries skip
// it, though it stays in storage and revives if named explicitly again.
// Expiry is evaluated lazily at read time; no background sweeps run.
//
// # Reference resolution
//
// ResolveText rewrites anaphora before parsing, so downstream components see
// a fully dereferenced question:
//
//	res := store.ResolveText(conv, "What are the dependencies of that agent?")
//	// res.Resolved == "What are the dependencies of 4D-Network-Agent?"
//
// Bare "it"/"them" select the most recently touched entity of any type.
// Determiner forms ("that agent", "the function") select the most recent
// entity of the named type, falling back to plain recency only when no
// type-compatible entity exists. Spans with no candidate are left untouched
// and reported, which downstream parsing turns into lower confidence or a
// clarification prompt.
//
// # Concurrency
//
// The Store is safe for concurrent use across conversations. Within one
// conversation, callers are expected to serialize turn processing: a second
// ask for the same conversation must wait for the first to complete. This is
// a documented precondition, not an internal guard.
package conversation
