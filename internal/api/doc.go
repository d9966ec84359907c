// Package api implements the HTTP management API for Sentinel.
//
// # Overview
//
// The server exposes the rule store, the packet simulator, the access log,
// detected threats and report export over JSON. A dashboard polls these
// endpoints or subscribes to /ws for pushed updates.
//
// # Request Flow
//
//	HTTP Request → AccessLog → CORS → MaxBody → Mux → [RateLimit] → Handler → engine.Engine
//
// # Adding New Endpoints
//
//  1. Create handler function: func (s *Server) handleFoo(w, r)
//  2. Register route in initRoutes() in server.go
//  3. Describe it in spec/openapi.yaml
//
// # Endpoints
//
//   - /rules - Rule listing, creation and deletion
//   - /simulate - Evaluate one packet
//   - /logs, /threats - Access log tail and detected threats
//   - /report - JSON or YAML export
//   - /audit - Management audit trail
//   - /healthz, /readyz, /metrics, /ws, /stats
package api
