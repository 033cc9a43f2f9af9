// Package api serves the bridge's admin HTTP API.
//
// Routes (all JSON):
//
//	GET  /api/v1/health          liveness and version
//	GET  /api/v1/status          bus session state, queue and level cache
//	GET  /api/v1/scenes          every fan/flap scene with its stored level
//	GET  /api/v1/scenes/{scene}  one scene
//	PUT  /api/v1/scenes/{scene}  {"level": 0-100}, bearer token required
//
// Write routes require an HS256 bearer token signed with the configured
// secret and carrying a subject and an expiry. IssueToken mints one; the
// dsbridge binary exposes it as "dsbridge token".
//
// Scene levels written here are the same ones the bus reads and writes
// through pass-through register access, so changes take effect on the next
// scene call.
//
// The server follows the usual lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
