package hrpc

import (
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
)

// ServeHTTP implements the HTTP POST binding: one HTTP request is exactly
// one decode, dispatch and encode cycle. Transport-level rejections
// (method, content type, host, origin, body size) happen before the body
// reaches the protocol engine and carry no JSON-RPC envelope.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "JSON-RPC requires POST", http.StatusMethodNotAllowed)
		return
	}
	if !s.contentTypeAllowed(r.Header.Get("Content-Type")) {
		s.logger.Debug().Str("content-type", r.Header.Get("Content-Type")).Msg("rejected content type")
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}
	if !s.hostAllowed(r.Host) {
		s.logger.Debug().Str("host", r.Host).Msg("rejected host")
		http.Error(w, "host not allowed", http.StatusForbidden)
		return
	}
	if !s.originAllowed(r.Header.Get("Origin")) {
		s.logger.Debug().Str("origin", r.Header.Get("Origin")).Msg("rejected origin")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	out, err := s.dispatcher.DispatchRaw(r.Context(), body)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// All-notification payloads produce no body.
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// contentTypeAllowed matches the media type against the allow-list,
// ignoring parameters such as charset. A missing Content-Type is accepted.
func (s *Server) contentTypeAllowed(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range s.options.AllowedContentTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

// hostAllowed matches the request host against the allow-list,
// case-insensitively and with or without the port.
func (s *Server) hostAllowed(host string) bool {
	if len(s.options.AllowedHosts) == 0 {
		return true
	}
	bare := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		bare = h
	}
	for _, allowed := range s.options.AllowedHosts {
		if strings.EqualFold(allowed, host) || strings.EqualFold(allowed, bare) {
			return true
		}
	}
	return false
}

// originAllowed matches the Origin header against the allow-list,
// case-insensitively. Requests without an Origin header (non-browser
// clients) are accepted.
func (s *Server) originAllowed(origin string) bool {
	if len(s.options.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.options.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
