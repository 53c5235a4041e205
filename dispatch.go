package hrpc

import (
	"context"
	"sync"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Dispatcher turns decoded payloads into responses: it resolves methods
// against a frozen MethodSet, invokes handlers through the middleware
// chain, and reassembles batch responses in their original order.
type Dispatcher struct {
	methods      *MethodSet
	middleware   []Middleware
	interceptors []RequestInterceptor
	logger       zerolog.Logger
}

// NewDispatcher creates a dispatcher over a frozen method set.
func NewDispatcher(methods *MethodSet) *Dispatcher {
	return &Dispatcher{methods: methods, logger: zerolog.Nop()}
}

// Use adds middleware to the chain.
// Middleware is executed in the order it is added.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.middleware = append(d.middleware, mw...)
}

// Intercept adds request interceptors. Interceptors run in registration
// order around every handler invocation.
func (d *Dispatcher) Intercept(ics ...RequestInterceptor) {
	d.interceptors = append(d.interceptors, ics...)
}

// SetLogger sets the logger used for handler faults.
func (d *Dispatcher) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

// DispatchRaw runs one full decode, dispatch and encode cycle for a raw
// payload. A nil body with a nil error means the payload contained only
// notifications and nothing is sent back.
func (d *Dispatcher) DispatchRaw(ctx context.Context, body []byte) ([]byte, error) {
	msg := DecodeMessage(body)
	responses := d.Dispatch(ctx, msg)
	// Payload-level rejections are framed as a single object even when the
	// payload was an array.
	batch := msg.Batch && msg.Reject == nil
	return EncodeResponses(responses, batch)
}

// Dispatch executes all calls of a decoded message. Batch entries run
// concurrently; the returned responses are in the original positional
// order of their requests regardless of completion order, with
// notifications contributing no entry.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) []*Response {
	if msg.Reject != nil {
		return []*Response{msg.Reject}
	}

	if !msg.Batch {
		resp := d.dispatchCall(ctx, msg.Calls[0])
		if resp == nil {
			return nil
		}
		return []*Response{resp}
	}

	results := make([]*Response, len(msg.Calls))
	var wg sync.WaitGroup
	for i := range msg.Calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.dispatchCall(ctx, msg.Calls[i])
		}(i)
	}
	wg.Wait()

	// The caller went away; nothing may be emitted for the batch.
	if ctx.Err() != nil {
		return nil
	}

	out := make([]*Response, 0, len(results))
	for _, resp := range results {
		if resp != nil {
			out = append(out, resp)
		}
	}
	return out
}

func (d *Dispatcher) dispatchCall(ctx context.Context, call Call) *Response {
	if call.Invalid != nil {
		return call.Invalid
	}
	return d.dispatchRequest(ctx, call.Request)
}

// dispatchRequest runs the per-call pipeline: shape validation, method
// lookup, handler invocation, outcome mapping. Notifications swallow both
// success and failure once they reach a handler.
func (d *Dispatcher) dispatchRequest(ctx context.Context, req *Request) *Response {
	if perr := req.Validate(); perr != nil {
		return NewErrorResponse(req.ResponseID(), perr)
	}

	method, ok := d.methods.Lookup(req.Method)
	if !ok {
		if req.IsNotification() {
			return nil
		}
		return NewErrorResponse(req.ID, ErrMethodNotFound(req.Method))
	}

	result, err := d.invoke(ctx, method, req)

	// A cancelled call never emits a response.
	if ctx.Err() != nil {
		return nil
	}
	if req.IsNotification() {
		return nil
	}

	if err != nil {
		perr := asProtocolError(err)
		if perr.Cause != nil {
			d.logger.Error().Err(perr.Cause).Str("method", req.Method).Msg("handler failed")
		}
		return NewErrorResponse(req.ID, perr)
	}
	return NewResponse(req.ID, result)
}

// invoke runs the handler through the interceptors and middleware chain.
func (d *Dispatcher) invoke(ctx context.Context, m *Method, req *Request) (any, error) {
	ctx = withRequest(ctx, req)
	ctx = withMethod(ctx, m)
	for _, ic := range d.interceptors {
		ctx = ic.BeforeRequest(ctx)
	}

	handler := func(ctx context.Context, req *Request) (any, error) {
		return d.callMethod(ctx, m, req.Params)
	}
	for i := len(d.middleware) - 1; i >= 0; i-- {
		handler = d.middleware[i](handler)
	}

	result, err := handler(ctx, req)
	for _, ic := range d.interceptors {
		ic.AfterRequest(ctx, err)
	}
	return result, err
}

// callMethod invokes the handler capability. Sync handlers run inline;
// async handlers run on their own goroutine so that cancellation can
// abandon them while they release resources through ctx.
func (d *Dispatcher) callMethod(ctx context.Context, m *Method, params jsontext.Value) (result any, err error) {
	if !m.Async {
		defer func() {
			if r := recover(); r != nil {
				err = ErrInternal(errors.Errorf("handler panic: %v", r))
			}
		}()
		return m.fn(ctx, params)
	}

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: ErrInternal(errors.Errorf("handler panic: %v", r))}
			}
		}()
		res, err := m.fn(ctx, params)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
