package hrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

type SumRequest struct {
	A int `json:"a"`
	B int `json:"b"`
}

type SumResponse struct {
	Sum int `json:"sum"`
}

type MathHandlers struct{}

func (h *MathHandlers) Sum(ctx context.Context, req *SumRequest) (*SumResponse, error) {
	return &SumResponse{Sum: req.A + req.B}, nil
}

// wireResponse mirrors Response with raw members for assertions.
type wireResponse struct {
	Version string         `json:"jsonrpc"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *ErrorObject   `json:"error,omitzero"`
	ID      jsontext.Value `json:"id"`
}

type sleepEchoParams struct {
	Ms    int    `json:"ms"`
	Value string `json:"value"`
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	registry := NewRegistry()

	if err := registry.Register(&MathHandlers{}); err != nil {
		t.Fatal(err)
	}
	mustRegister := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	mustRegister(registry.RegisterFunc("echo", echoFunc))
	mustRegister(registry.RegisterFunc("fail", func(ctx context.Context, params jsontext.Value) (any, error) {
		return nil, &ProtocolError{Code: -32001, Message: "boom", Data: map[string]any{"hint": "retry"}}
	}))
	mustRegister(registry.RegisterFunc("opaque", func(ctx context.Context, params jsontext.Value) (any, error) {
		return nil, errors.New("db down")
	}))
	mustRegister(registry.RegisterFunc("panics", func(ctx context.Context, params jsontext.Value) (any, error) {
		panic("kaboom")
	}))
	mustRegister(registry.RegisterAsyncFunc("sleepEcho", sleepEchoHandler))

	return NewDispatcher(registry.MustFreeze())
}

func dispatchBody(t *testing.T, d *Dispatcher, body string) []byte {
	t.Helper()
	out, err := d.DispatchRaw(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("DispatchRaw failed: %v", err)
	}
	return out
}

func decodeSingle(t *testing.T, out []byte) *wireResponse {
	t.Helper()
	var resp wireResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("invalid response %s: %v", out, err)
	}
	return &resp
}

func decodeBatch(t *testing.T, out []byte) []wireResponse {
	t.Helper()
	var resps []wireResponse
	if err := json.Unmarshal(out, &resps); err != nil {
		t.Fatalf("invalid batch response %s: %v", out, err)
	}
	return resps
}

func TestDispatchTypedCall(t *testing.T) {
	d := newTestDispatcher(t)

	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"Sum","params":{"a":2,"b":3},"id":1}`))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.ID) != "1" {
		t.Errorf("id = %s, want 1", resp.ID)
	}
	if string(resp.Result) != `{"sum":5}` {
		t.Errorf("result = %s, want {\"sum\":5}", resp.Result)
	}

	// Positional params map onto struct fields in declaration order.
	resp = decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"Sum","params":[4,6],"id":"abc"}`))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.ID) != `"abc"` {
		t.Errorf("id = %s, want \"abc\"", resp.ID)
	}
	if string(resp.Result) != `{"sum":10}` {
		t.Errorf("result = %s", resp.Result)
	}
}

func TestDispatchInvalidParams(t *testing.T) {
	d := newTestDispatcher(t)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"Sum","params":[1],"id":1}`,
		`{"jsonrpc":"2.0","method":"Sum","params":[1,2,3],"id":1}`,
		`{"jsonrpc":"2.0","method":"Sum","params":{"a":"x","b":1},"id":1}`,
	} {
		resp := decodeSingle(t, dispatchBody(t, d, body))
		if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
			t.Errorf("body %s: expected invalid params, got %+v", body, resp.Error)
		}
		if string(resp.ID) != "1" {
			t.Errorf("body %s: id = %s, want 1", body, resp.ID)
		}
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	d := newTestDispatcher(t)

	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"doesNotExist","id":5}`))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
	if string(resp.ID) != "5" {
		t.Errorf("id = %s, want 5", resp.ID)
	}
}

func TestDispatchVersionMismatch(t *testing.T) {
	d := newTestDispatcher(t)

	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"1.0","method":"echo","id":5}`))
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
	if string(resp.ID) != "5" {
		t.Errorf("id = %s, want 5", resp.ID)
	}
}

func TestDispatchEmptyObject(t *testing.T) {
	d := newTestDispatcher(t)

	resp := decodeSingle(t, dispatchBody(t, d, `{}`))
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Errorf("id = %s, want null", resp.ID)
	}
}

func TestDispatchHandlerErrors(t *testing.T) {
	d := newTestDispatcher(t)

	// Classified errors keep their code, message and data.
	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"fail","id":1}`))
	if resp.Error == nil || resp.Error.Code != -32001 || resp.Error.Message != "boom" {
		t.Fatalf("expected classified error, got %+v", resp.Error)
	}
	if resp.Error.Data == nil {
		t.Error("expected error data to pass through")
	}

	// Unclassified faults fold into an internal error without leaking the
	// original message.
	resp = decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"opaque","id":2}`))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp.Error)
	}
	if resp.Error.Message != "internal error" {
		t.Errorf("internal fault must not leak, got %q", resp.Error.Message)
	}

	// A panicking handler fails only its own call.
	resp = decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"panics","id":3}`))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp.Error)
	}
}

func TestDispatchNotificationProducesNothing(t *testing.T) {
	d := newTestDispatcher(t)

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"echo","params":[1]}`,
		`{"jsonrpc":"2.0","method":"fail"}`,
		`{"jsonrpc":"2.0","method":"panics"}`,
		`{"jsonrpc":"2.0","method":"doesNotExist"}`,
	} {
		out := dispatchBody(t, d, body)
		if out != nil {
			t.Errorf("body %s: notification produced output %s", body, out)
		}
	}
}

func TestDispatchBatchOrdering(t *testing.T) {
	d := newTestDispatcher(t)

	// Completion order is the reverse of request order; the response order
	// must still match the request order.
	body := `[
		{"jsonrpc":"2.0","method":"sleepEcho","params":{"ms":60,"value":"first"},"id":1},
		{"jsonrpc":"2.0","method":"sleepEcho","params":{"ms":30,"value":"second"},"id":2},
		{"jsonrpc":"2.0","method":"log","params":[1]},
		{"jsonrpc":"2.0","method":"sleepEcho","params":{"ms":1,"value":"third"},"id":3}
	]`
	start := time.Now()
	resps := decodeBatch(t, dispatchBody(t, d, body))
	elapsed := time.Since(start)

	if len(resps) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(resps))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(resps[i].ID) != want {
			t.Errorf("response %d has id %s, want %s", i, resps[i].ID, want)
		}
	}
	for i, want := range []string{`"first"`, `"second"`, `"third"`} {
		if string(resps[i].Result) != want {
			t.Errorf("response %d has result %s, want %s", i, resps[i].Result, want)
		}
	}

	// Entries run concurrently, so the batch takes about as long as its
	// slowest entry, not the sum.
	if elapsed > 200*time.Millisecond {
		t.Errorf("batch took %v, entries do not appear to run concurrently", elapsed)
	}
}

func TestDispatchBatchIsolatesFailures(t *testing.T) {
	d := newTestDispatcher(t)

	body := `[
		{"jsonrpc":"2.0","method":"doesNotExist","id":1},
		42,
		{"jsonrpc":"2.0","method":"Sum","params":{"a":1,"b":1},"id":2}
	]`
	resps := decodeBatch(t, dispatchBody(t, d, body))
	if len(resps) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(resps))
	}
	if resps[0].Error == nil || resps[0].Error.Code != CodeMethodNotFound {
		t.Errorf("entry 0: expected method not found, got %+v", resps[0].Error)
	}
	if resps[1].Error == nil || resps[1].Error.Code != CodeInvalidRequest {
		t.Errorf("entry 1: expected invalid request, got %+v", resps[1].Error)
	}
	if string(resps[1].ID) != "null" {
		t.Errorf("entry 1: id = %s, want null", resps[1].ID)
	}
	if resps[2].Error != nil {
		t.Errorf("entry 2 must succeed despite failing siblings, got %+v", resps[2].Error)
	}
}

func TestDispatchAllNotificationBatch(t *testing.T) {
	d := newTestDispatcher(t)

	out := dispatchBody(t, d, `[
		{"jsonrpc":"2.0","method":"echo","params":[1]},
		{"jsonrpc":"2.0","method":"echo","params":[2]}
	]`)
	if out != nil {
		t.Errorf("all-notification batch produced output %s", out)
	}
}

func TestDispatchCancellation(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	released := make(chan struct{})
	if err := registry.RegisterAsyncFunc("block", func(ctx context.Context, params jsontext.Value) (any, error) {
		close(started)
		<-ctx.Done()
		close(released)
		return nil, ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterFunc("echo", echoFunc); err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(registry.MustFreeze())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []*Response, 1)
	go func() {
		msg := DecodeMessage([]byte(`[
			{"jsonrpc":"2.0","method":"block","id":1},
			{"jsonrpc":"2.0","method":"echo","params":[1],"id":2}
		]`))
		done <- d.Dispatch(ctx, msg)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}
	cancel()

	select {
	case resps := <-done:
		if resps != nil {
			t.Errorf("cancelled batch must emit nothing, got %d responses", len(resps))
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after cancellation")
	}

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("handler did not observe cancellation")
	}
}

func TestDispatchAsyncSingleCall(t *testing.T) {
	d := newTestDispatcher(t)

	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"sleepEcho","params":{"ms":1,"value":"ok"},"id":9}`))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.Result) != `"ok"` || string(resp.ID) != "9" {
		t.Errorf("got result %s id %s", resp.Result, resp.ID)
	}
}

func TestDispatchMiddlewareAndInterceptor(t *testing.T) {
	d := newTestDispatcher(t)

	var order []string
	d.Use(func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (any, error) {
			order = append(order, "mw:"+req.Method)
			return next(ctx, req)
		}
	})
	d.Intercept(&recordingInterceptor{t: t, order: &order})

	resp := decodeSingle(t, dispatchBody(t, d, `{"jsonrpc":"2.0","method":"Sum","params":{"a":1,"b":2},"id":1}`))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	want := []string{"before", "mw:Sum", "after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

type recordingInterceptor struct {
	t     *testing.T
	order *[]string
}

func (i *recordingInterceptor) BeforeRequest(ctx context.Context) context.Context {
	if req := RequestFromContext(ctx); req == nil || req.Method != "Sum" {
		i.t.Errorf("request missing from context: %+v", req)
	}
	if m := MethodFromContext(ctx); m == nil || m.Name != "Sum" {
		i.t.Errorf("method missing from context: %+v", m)
	}
	*i.order = append(*i.order, "before")
	return ctx
}

func (i *recordingInterceptor) AfterRequest(ctx context.Context, err error) {
	*i.order = append(*i.order, "after")
}
