// Package knowledge is the read-only world-knowledge collaborator: records
// describing agents, functions, rules, facts, and examples, a query surface
// over them, and the reference responder that turns route queries into
// cited answers.
//
// # Store
//
// Store is the boundary the engine consumes:
//
//	rec, err := store.Lookup(ctx, knowledge.KindAgent, "4D-Network-Agent")
//	recs, err := store.Find(ctx, knowledge.Query{Kinds: []knowledge.Kind{knowledge.KindAgent}, Dimension: "4D"})
//
// MemoryStore is the in-process implementation: loaded once from seed packs
// at startup, read-only afterwards. NewCachingStore wraps any Store with a
// TTL + size-bounded result cache for fan-out traffic.
//
// # Seed packs
//
// Knowledge is declared in TOML packs, one file per pack:
//
//	[[agents]]
//	name = "4D-Network-Agent"
//	description = "Routes entity state across the 4D overlay."
//	dimension = "4D"
//	capabilities = ["general-eval", "network"]
//	dependencies = ["Signal-Relay-Agent"]
//	source = "world-kernel/agents/network.md"
//
// The table a record appears under ([[agents]], [[functions]], [[rules]],
// [[facts]], [[examples]]) sets its kind. A default pack is embedded so a
// gateway with no seed directory still answers.
//
// # Classifier
//
// Classifier is the keyword base classifier: the deterministic first pass
// that types a question before conversation-context refinement. It tags
// dimensions ("4D"), recognizes names the store knows, and falls back to
// keyword cues. It never consults conversation state.
//
// # Responder
//
// Responder answers one route's query from store records: entity matches
// first, then dimension listings, then keyword search. Specialist agents
// with nothing relevant fail the route; the general agent always answers,
// at low confidence when it only has orientation facts to offer. Answers
// are Markdown with deduplicated citations.
package knowledge
