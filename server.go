package hrpc

import (
	"github.com/rs/zerolog"
)

// ServerOptions configures the transport-facing behavior of a Server.
// The zero value of each field selects the default.
type ServerOptions struct {
	// MaxBodyBytes caps the size of one request body. Oversized bodies are
	// rejected before decoding. Default: 10 MiB.
	MaxBodyBytes int64
	// AllowedContentTypes is the Content-Type allow-list for HTTP requests.
	// Media type parameters such as charset are ignored when matching.
	// Requests that carry no Content-Type header at all are accepted,
	// so non-browser clients need not set one. Default: application/json.
	AllowedContentTypes []string
	// AllowedHosts restricts the Host header. Values are compared
	// case-insensitively, with and without port. Empty allows all hosts.
	AllowedHosts []string
	// AllowedOrigins restricts the Origin header for browser clients.
	// Values are compared case-insensitively. Empty allows all origins.
	AllowedOrigins []string
	// Logger receives handler faults and transport rejections.
	// Default: a no-op logger.
	Logger *zerolog.Logger
}

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		MaxBodyBytes:        10 << 20,
		AllowedContentTypes: []string{"application/json"},
	}
}

// Server serves JSON-RPC 2.0 over HTTP POST bodies and, optionally, over
// WebSocket messages. It holds a frozen method set; all per-request state
// lives on the stack of the request being served.
type Server struct {
	methods    *MethodSet
	dispatcher *Dispatcher
	options    ServerOptions
	logger     zerolog.Logger
}

// NewServer creates a new server over a frozen method set.
// An optional ServerOptions can be passed to configure server behavior.
func NewServer(methods *MethodSet, opts ...ServerOptions) *Server {
	options := defaultServerOptions()
	if len(opts) > 0 {
		opt := opts[0]
		if opt.MaxBodyBytes > 0 {
			options.MaxBodyBytes = opt.MaxBodyBytes
		}
		if len(opt.AllowedContentTypes) > 0 {
			options.AllowedContentTypes = opt.AllowedContentTypes
		}
		if len(opt.AllowedHosts) > 0 {
			options.AllowedHosts = opt.AllowedHosts
		}
		if len(opt.AllowedOrigins) > 0 {
			options.AllowedOrigins = opt.AllowedOrigins
		}
		if opt.Logger != nil {
			options.Logger = opt.Logger
		}
	}

	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}

	dispatcher := NewDispatcher(methods)
	dispatcher.SetLogger(logger)

	return &Server{
		methods:    methods,
		dispatcher: dispatcher,
		options:    options,
		logger:     logger,
	}
}

// Use adds middleware to the chain.
// Middleware is executed in the order it is added.
func (s *Server) Use(mw ...Middleware) {
	s.dispatcher.Use(mw...)
}

// Intercept adds request interceptors around every handler invocation.
func (s *Server) Intercept(ics ...RequestInterceptor) {
	s.dispatcher.Intercept(ics...)
}

// Methods returns the server's frozen method set.
func (s *Server) Methods() *MethodSet {
	return s.methods
}

// Dispatcher returns the server's dispatcher, for serving the engine over
// a transport this package does not provide.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}
