package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/marrasen/hrpc"
)

// Handlers implements the example API
type Handlers struct {
	users  map[string]*User
	mu     sync.RWMutex
	nextID int
}

func NewHandlers() *Handlers {
	return &Handlers{
		users:  make(map[string]*User),
		nextID: 1,
	}
}

// CreateUser creates a new user
func (h *Handlers) CreateUser(ctx context.Context, req *CreateUserRequest) (*CreateUserResponse, error) {
	if req.Name == "" {
		return nil, hrpc.ErrInvalidParams("name is required")
	}
	if req.Email == "" {
		return nil, hrpc.ErrInvalidParams("email is required")
	}

	h.mu.Lock()
	id := fmt.Sprintf("u%d", h.nextID)
	h.nextID++
	h.users[id] = &User{ID: id, Name: req.Name, Email: req.Email}
	h.mu.Unlock()

	return &CreateUserResponse{ID: id, Name: req.Name, Email: req.Email}, nil
}

// GetUser looks up a user by id
func (h *Handlers) GetUser(ctx context.Context, req *GetUserRequest) (*GetUserResponse, error) {
	h.mu.RLock()
	user, ok := h.users[req.ID]
	h.mu.RUnlock()

	if !ok {
		return nil, hrpc.ServerError(-32001, "user not found")
	}
	return &GetUserResponse{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

// ListUsers returns all users
func (h *Handlers) ListUsers(ctx context.Context, req *ListUsersRequest) (*ListUsersResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]User, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, *u)
	}
	return &ListUsersResponse{Users: users}, nil
}
