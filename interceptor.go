package hrpc

import "context"

// RequestInterceptor hooks into the dispatch of every call, inside the
// transport binding but outside the middleware chain. BeforeRequest runs
// once the method has been resolved and may enrich the context handed to
// the handler; AfterRequest runs with the handler's error (nil on
// success), before the response is assembled. Notifications are
// intercepted like any other call even though their outcome is discarded.
type RequestInterceptor interface {
	BeforeRequest(ctx context.Context) context.Context
	AfterRequest(ctx context.Context, err error)
}
