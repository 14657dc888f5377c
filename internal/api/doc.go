// Package api provides the HTTP REST API and WebSocket server for localtuya-core.
//
// It exposes the device clients (property reads, writes, anticipation and
// refresh), the profile catalogue, state history and live state changes.
//
//	server, err := api.New(deps)
//	if err != nil {
//	    return err
//	}
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Close()
//
// Routes live under /api/v1. /health and /metrics are open, /ws checks its
// token in the handler and /devices and /profiles sit behind authMiddleware.
//
// Device errors map to JSON error bodies. Invalid values and unknown
// properties are 400. A packed write whose current raw value is unknown
// is 409 state_unknown. Failed device round trips are 502.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
