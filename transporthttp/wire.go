// Package transporthttp is the reference HTTP transport from spec §6: a
// gorilla/mux server exposing pull/push/health, a client implementing
// contract.Transport over that server, and an optional gorilla/websocket
// real-time change channel — grounded on the teacher's
// cmd/server/handlers/silence_ws.go + dashboard_ws.go WebSocket hub pattern.
package transporthttp

import "github.com/kestrel-sync/docsync/syncmodel"

// pullResponse is the wire shape of GET {base}/sync/pull.
type pullResponse[T any] struct {
	Success   bool                          `json:"success"`
	Changes   []syncmodel.ChangeRecord[T]   `json:"changes"`
	Timestamp syncmodel.Timestamp           `json:"timestamp"`
	Error     string                        `json:"error,omitempty"`
}

// pushResponse is the wire shape of POST {base}/sync/push.
type pushResponse[T any] struct {
	Success   bool                          `json:"success"`
	Conflicts []syncmodel.ConflictInfo[T]   `json:"conflicts,omitempty"`
	Timestamp *syncmodel.Timestamp          `json:"timestamp,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

// wireChangeNotification is what the websocket channel delivers: a batch of
// changes the remote applied and wants every connected client to pick up.
type wireChangeNotification[T any] struct {
	Changes []syncmodel.ChangeRecord[T] `json:"changes"`
}
