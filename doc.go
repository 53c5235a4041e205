// Package hrpc implements a JSON-RPC 2.0 server with an HTTP POST binding
// and an optional WebSocket binding.
//
// Methods are registered during a mutable build phase and then frozen into
// an immutable method set, so the lookup path of the serving phase takes no
// locks:
//
//	registry := hrpc.NewRegistry()
//	registry.Register(&MyHandlers{})
//	registry.RegisterFunc("ping", func(ctx context.Context, params jsontext.Value) (any, error) {
//		return "pong", nil
//	})
//
//	server := hrpc.NewServer(registry.MustFreeze())
//	http.ListenAndServe(":8080", server)
//
// Handler structs expose methods of the form
//
//	func(ctx context.Context, req *T) (*U, error)
//
// where params map onto T either by json field name (object params) or by
// field declaration order (array params).
//
// Batch payloads dispatch every entry concurrently and reassemble the
// responses in the original request order; notifications (requests without
// an id) never produce a response. When the client disconnects before a
// batch resolves, the request context is cancelled and nothing is emitted.
package hrpc
