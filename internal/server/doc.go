// Package server exposes light-assistant over HTTP.
//
// POST /chat appends the user's message to their active conversation, builds
// the backend context, and answers with a server-sent event stream driven by
// a relay. The stream token is returned in the X-Stream-ID header and can be
// passed to POST /stop_stream/{id}. Conversation management and /health are
// plain JSON.
//
// Every route except /health and /login requires a session (cookie or bearer
// token) for an allow-listed email.
//
// The listener is plain TCP, or a tsnet node on the tailnet when tailscale is
// enabled. Run blocks until its context is canceled and then shuts down with
// a five second budget.
package server
