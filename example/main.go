package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"

	"github.com/marrasen/hrpc"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Register handlers during the build phase, then freeze.
	registry := hrpc.NewRegistry()
	if err := registry.Register(NewHandlers()); err != nil {
		logger.Fatal().Err(err).Msg("failed to register handlers")
	}
	if err := registry.RegisterAsyncFunc("slowPing", slowPing); err != nil {
		logger.Fatal().Err(err).Msg("failed to register handlers")
	}

	server := hrpc.NewServer(registry.MustFreeze(), hrpc.ServerOptions{
		MaxBodyBytes: 1 << 20,
		Logger:       &logger,
	})
	server.Use(requestLog(logger))

	http.Handle("/rpc", server)
	http.Handle("/ws", server.WebSocket())

	addr := ":8080"
	logger.Info().
		Str("addr", addr).
		Strs("methods", server.Methods().Names()).
		Msg("server starting")
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// requestLog logs every call with its duration.
func requestLog(logger zerolog.Logger) hrpc.Middleware {
	return func(next hrpc.Handler) hrpc.Handler {
		return func(ctx context.Context, req *hrpc.Request) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)
			logger.Info().
				Str("method", req.Method).
				Dur("elapsed", time.Since(start)).
				Err(err).
				Msg("call")
			return result, err
		}
	}
}

// slowPing simulates a handler with its own suspension point.
func slowPing(ctx context.Context, params jsontext.Value) (any, error) {
	select {
	case <-time.After(500 * time.Millisecond):
		return "pong", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
