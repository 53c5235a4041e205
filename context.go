package hrpc

import "context"

type contextKey int

const (
	requestKey contextKey = iota
	methodKey
)

// RequestFromContext returns the Request being dispatched.
// Returns nil if not present.
func RequestFromContext(ctx context.Context) *Request {
	if req, ok := ctx.Value(requestKey).(*Request); ok {
		return req
	}
	return nil
}

// MethodFromContext returns the Method resolved for the current call.
// Returns nil if not present.
func MethodFromContext(ctx context.Context) *Method {
	if m, ok := ctx.Value(methodKey).(*Method); ok {
		return m
	}
	return nil
}

// withRequest returns a context with the given request.
func withRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// withMethod returns a context with the given method.
func withMethod(ctx context.Context, m *Method) context.Context {
	return context.WithValue(ctx, methodKey, m)
}
