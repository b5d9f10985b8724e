// Package identity holds the logged-in user for a client process. It is
// created once and passed to the components that need it.
package identity

import (
	"context"
	"sync"

	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/model"
)

// Authenticator is the subset of the API client used for login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*model.LoginResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*model.User, error)
}

// User is the identity of the logged-in account.
type User struct {
	ID       int64
	Username string
	Role     model.Role
}

// Context tracks the logged-in user.
type Context struct {
	auth Authenticator

	mu   sync.RWMutex
	user *User
}

func New(auth Authenticator) *Context {
	return &Context{auth: auth}
}

// Login authenticates and populates the context.
func (c *Context) Login(ctx context.Context, username, password string) (User, error) {
	resp, err := c.auth.Login(ctx, username, password)
	if err != nil {
		return User{}, err
	}
	u := User{ID: resp.UserID, Username: resp.Username, Role: resp.Role}

	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
	return u, nil
}

// Restore populates the context from an existing session cookie.
func (c *Context) Restore(ctx context.Context) (User, error) {
	me, err := c.auth.Me(ctx)
	if err != nil {
		return User{}, err
	}
	u := User{ID: me.ID, Username: me.Username, Role: me.Role}

	c.mu.Lock()
	c.user = &u
	c.mu.Unlock()
	return u, nil
}

// Logout clears the context even if the server call fails.
func (c *Context) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
	return c.auth.Logout(ctx)
}

// Current returns the logged-in user.
func (c *Context) Current() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

// StudentID returns the logged-in student's id, or a missing-context error.
func (c *Context) StudentID() (int64, error) {
	u, ok := c.Current()
	if !ok {
		return 0, apiclient.MissingContext("student id", "You must be logged in.")
	}
	if u.Role != model.RoleStudent {
		return 0, apiclient.MissingContext("student id", "This account is not a student account.")
	}
	return u.ID, nil
}
