// Package gateway composes the conversation engine and serves it over HTTP.
//
// New builds the full stack from configuration: the knowledge store (seed
// packs or the embedded defaults) behind a read cache, the conversation
// store, intent parser, router, coordinator, and dialogue manager, all fronted
// by the engine facade. The gateway subscribes to engine events for logging
// and checkpoints every committed turn into the SQLite snapshot archive.
//
// The HTTP surface has three parts: the JSON API under /api, the read-only
// HTML console under /console, and the /health endpoints.
package gateway
