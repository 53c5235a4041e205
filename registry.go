package hrpc

import (
	"context"
	"reflect"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// HandlerFunc is the raw handler capability: it receives the raw JSON
// params of one call and returns a result or an error. Returning a
// *ProtocolError controls the error object sent to the client.
type HandlerFunc func(ctx context.Context, params jsontext.Value) (any, error)

// Method is one entry of the frozen method table.
type Method struct {
	// Name is the exact, case-sensitive method name clients call.
	Name string
	// Async marks handlers that may block on their own suspension points;
	// the dispatcher runs them on a separate goroutine and abandons them
	// when the call context is cancelled.
	Async bool

	fn    HandlerFunc
	typed *HandlerInfo
}

// Info returns reflection metadata for methods registered from a handler
// struct, or nil for function-registered methods.
func (m *Method) Info() *HandlerInfo {
	return m.typed
}

// HandlerInfo contains metadata about a method registered via reflection.
type HandlerInfo struct {
	Name         string
	StructName   string
	RequestType  reflect.Type
	ResponseType reflect.Type

	method      reflect.Value
	paramNames  []string
	paramFields []int
}

// Registry is the mutable build phase of the method table. Registration is
// only legal before Freeze; the frozen MethodSet is what serving code reads.
type Registry struct {
	mu      sync.Mutex
	methods map[string]*Method
	frozen  bool
}

// NewRegistry creates a new, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Method)}
}

// Register registers all valid handler methods from the given struct.
// A valid handler method has the signature:
//
//	func(ctx context.Context, req *T) (*U, error)
//
// Each method is registered under its Go method name. Registering a name
// twice fails and keeps the first registration.
func (r *Registry) Register(receiver any) error {
	v := reflect.ValueOf(receiver)
	t := v.Type()

	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return errors.New("handler must be a pointer to a struct")
	}

	structName := t.Elem().Name()
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		info := validateMethod(method, v, structName)
		if info == nil {
			continue
		}
		m := &Method{Name: info.Name, fn: info.call, typed: info}
		if err := r.add(m); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc registers a synchronous handler function under the given
// name. The handler runs inline on the dispatching goroutine and must not
// block for long.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) error {
	return r.add(&Method{Name: name, fn: fn})
}

// RegisterAsyncFunc registers an asynchronous handler function under the
// given name. The handler may block on its own suspension points; it must
// observe ctx.Done and release resources when the call is cancelled.
func (r *Registry) RegisterAsyncFunc(name string, fn HandlerFunc) error {
	return r.add(&Method{Name: name, Async: true, fn: fn})
}

func (r *Registry) add(m *Method) error {
	if m.Name == "" {
		return errors.New("method name must not be empty")
	}
	if m.fn == nil {
		return errors.Errorf("method %s: handler must not be nil", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Errorf("registry is frozen, cannot register method %s", m.Name)
	}
	if _, exists := r.methods[m.Name]; exists {
		return errors.Errorf("method already registered: %s", m.Name)
	}
	r.methods[m.Name] = m
	return nil
}

// Freeze finalizes the registry into an immutable MethodSet. The registry
// cannot be used for registration afterwards; freezing twice is an error.
func (r *Registry) Freeze() (*MethodSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil, errors.New("registry is already frozen")
	}
	r.frozen = true

	methods := make(map[string]*Method, len(r.methods))
	for name, m := range r.methods {
		methods[name] = m
	}
	return &MethodSet{methods: methods}, nil
}

// MustFreeze is like Freeze but panics on error. Registration problems are
// startup configuration errors, so panicking at boot is acceptable.
func (r *Registry) MustFreeze() *MethodSet {
	ms, err := r.Freeze()
	if err != nil {
		panic(err)
	}
	return ms
}

// MethodSet is the immutable, freely shareable serve phase of the method
// table. Lookups take no locks.
type MethodSet struct {
	methods map[string]*Method
}

// Lookup returns the method registered under the exact given name.
func (s *MethodSet) Lookup(name string) (*Method, bool) {
	m, ok := s.methods[name]
	return m, ok
}

// Names returns all registered method names.
func (s *MethodSet) Names() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

// validateMethod checks if a method matches the handler signature.
func validateMethod(method reflect.Method, handlerValue reflect.Value, structName string) *HandlerInfo {
	mt := method.Type

	// Must have exactly 3 inputs: receiver, context.Context, *RequestType
	if mt.NumIn() != 3 {
		return nil
	}
	if !mt.In(1).Implements(contextType) {
		return nil
	}
	reqType := mt.In(2)
	if reqType.Kind() != reflect.Ptr || reqType.Elem().Kind() != reflect.Struct {
		return nil
	}

	// Must have exactly 2 outputs: *ResponseType, error
	if mt.NumOut() != 2 {
		return nil
	}
	respType := mt.Out(0)
	if respType.Kind() != reflect.Ptr || respType.Elem().Kind() != reflect.Struct {
		return nil
	}
	if !mt.Out(1).Implements(errorType) {
		return nil
	}

	info := &HandlerInfo{
		Name:         method.Name,
		StructName:   structName,
		RequestType:  reqType.Elem(),
		ResponseType: respType.Elem(),
		method:       handlerValue.Method(method.Index),
	}
	info.indexParams()
	return info
}

// indexParams records the json names and field indices of the request
// struct, used to map positional params onto fields in declaration order.
func (info *HandlerInfo) indexParams() {
	t := info.RequestType
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := splitTag(tag)
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		info.paramNames = append(info.paramNames, name)
		info.paramFields = append(info.paramFields, i)
	}
}

func splitTag(tag string) (name, rest string, hasRest bool) {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i], tag[i+1:], true
		}
	}
	return tag, "", false
}

// call invokes the handler with the given context and JSON params. Params
// may be a JSON object mapping fields by name, or a JSON array mapping
// fields positionally in declaration order.
func (info *HandlerInfo) call(ctx context.Context, params jsontext.Value) (any, error) {
	reqPtr := reflect.New(info.RequestType)

	switch {
	case len(params) == 0 || params.Kind() == 'n':
		// Absent params leave the zero request.
	case params.Kind() == '[':
		var elems []jsontext.Value
		if err := json.Unmarshal(params, &elems); err != nil {
			return nil, ErrInvalidParams(err.Error())
		}
		if len(elems) != len(info.paramFields) {
			return nil, ErrInvalidParams("wrong number of params")
		}
		for i, elem := range elems {
			field := reqPtr.Elem().Field(info.paramFields[i])
			if err := json.Unmarshal(elem, field.Addr().Interface()); err != nil {
				return nil, ErrInvalidParams(err.Error())
			}
		}
	default:
		if err := json.Unmarshal(params, reqPtr.Interface()); err != nil {
			return nil, ErrInvalidParams(err.Error())
		}
	}

	results := info.method.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reqPtr,
	})

	resp := results[0].Interface()
	errVal := results[1].Interface()
	if errVal != nil {
		return nil, errVal.(error)
	}
	return resp, nil
}
