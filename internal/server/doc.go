// Package server wires the game host together and runs its HTTP surface.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (CORS, rate limiting, recovery, metrics)
//   - Catalog and results service clients
//   - Content transformation pipeline
//   - Headless validation pool
//   - Player view manager and websocket relay
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Build clients, transformer, validator, and player manager
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//  6. Graceful shutdown on signal: drain HTTP, close player views so
//     partial saves go out, tear down the validation pool
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv := server.New(cfg, logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
