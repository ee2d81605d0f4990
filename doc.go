// Package tandem is the backend for an AI pair-programming assistant.
//
// The binary serves a REST+SSE API that a local client drives: it creates
// chat sessions, streams assistant output and tool activity as server-sent
// events, and persists every session to SQL storage so conversations can be
// resumed across restarts.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/tandem-dev/tandem/cmd/tandem@latest
//
// Export an OpenRouter key and start it:
//
//	export OPENROUTER_API_KEY=sk-or-...
//	tandem serve
//
// The server listens on :3001 by default and stores its SQLite database
// under .tandem/. See pkg/config for the full set of environment variables.
//
// # Architecture
//
// A turn flows through the module like this:
//
//	Client → HTTP server → session manager → orchestrator → OpenRouter
//	                          ↓                   ↓
//	                      SQL store          tool registry
//
// Each session owns an event bus; subscribers replay the whole turn from the
// start, so a client can reconnect mid-stream without losing output.
//
// # Packages
//
// The main entry points for library use:
//
//	import (
//	    "github.com/tandem-dev/tandem/pkg/agent"
//	    "github.com/tandem-dev/tandem/pkg/session"
//	    "github.com/tandem-dev/tandem/pkg/store"
//	)
package tandem
