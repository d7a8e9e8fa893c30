// Package main is the entry point for the game host server.
//
// The game host embeds untrusted HTML mini-games into the learning
// platform's player: it transforms raw game content into safely
// embeddable documents, relays sandboxed play sessions over websockets,
// tracks scores and elapsed time, enforces fullscreen for student
// viewers, and reports results to the platform.
//
// Architecture:
//
//	Player frontend → Game host → Catalog service (game content)
//	                            → Results service (session outcomes)
//
// The server provides:
//   - REST API for catalog browsing and player view control
//   - WebSocket relay for live play sessions
//   - Headless validation of games before publishing
//   - Prometheus metrics and rate limiting
//
// Configuration comes from environment variables (12-factor), with
// working defaults for development.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown with partial result saves
package main
