// Package account carries the organizer account a request acts for.
package account

import (
	"context"
	"errors"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var (
	ErrNoMembership = errors.New("user is not a member of that account")
	ErrNoUser       = errors.New("missing user id")
)

type Membership struct {
	AccountID string `json:"accountid"`
	Role      Role   `json:"role"`
}

// Context is the acting user plus the account selected for this request.
// It is a value: switching accounts returns a new Context.
type Context struct {
	userID      string
	active      Membership
	memberships []Membership
}

// New selects activeID among the user's memberships, or the first one when
// activeID is empty. A user without memberships acts for a personal account
// keyed by their own id.
func New(userID string, memberships []Membership, activeID string) (Context, error) {
	if userID == "" {
		return Context{}, ErrNoUser
	}
	if len(memberships) == 0 {
		memberships = []Membership{{AccountID: userID, Role: RoleOwner}}
	}
	c := Context{
		userID:      userID,
		memberships: append([]Membership(nil), memberships...),
	}
	if activeID == "" {
		c.active = c.memberships[0]
		return c, nil
	}
	return c.SwitchAccount(activeID)
}

func (c Context) SwitchAccount(accountID string) (Context, error) {
	for _, m := range c.memberships {
		if m.AccountID == accountID {
			next := c
			next.active = m
			return next, nil
		}
	}
	return Context{}, ErrNoMembership
}

func (c Context) UserID() string    { return c.userID }
func (c Context) AccountID() string { return c.active.AccountID }
func (c Context) Role() Role        { return c.active.Role }

func (c Context) Memberships() []Membership {
	return append([]Membership(nil), c.memberships...)
}

// CanPublish reports whether the active role may create or change events.
func (c Context) CanPublish() bool {
	switch c.active.Role {
	case RoleOwner, RoleAdmin, RoleEditor:
		return true
	}
	return false
}

type ctxKey struct{}

func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(Context)
	return c, ok
}
