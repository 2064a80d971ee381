package auth

import (
	"errors"
	"sync"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

var ErrUnauthorized = errors.New("caller lacks required role")

// Profile is the caller-managed display profile.
type Profile struct {
	Name string
}

// Resolver maps an opaque caller principal to a role. Identity issuance
// itself lives outside the engine; this is the boundary the policy gate
// consumes.
type Resolver interface {
	RoleOf(principal string) Role
}

// Registry is an in-memory Resolver that also tracks user profiles and
// business ownership. A multi-node deployment would back this with its
// identity provider; the engine only ever sees the lookup surface.
type Registry struct {
	mu       sync.RWMutex
	roles    map[string]Role
	profiles map[string]Profile
	owners   map[string]string // businessID -> owning admin principal
}

func NewRegistry(adminPrincipals []string) *Registry {
	r := &Registry{
		roles:    make(map[string]Role),
		profiles: make(map[string]Profile),
		owners:   make(map[string]string),
	}
	for _, p := range adminPrincipals {
		r.roles[p] = RoleAdmin
	}
	return r
}

// RoleOf resolves a principal's role. Unknown or empty principals are
// guests.
func (r *Registry) RoleOf(principal string) Role {
	if principal == "" {
		return RoleGuest
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role, ok := r.roles[principal]; ok {
		return role
	}
	return RoleGuest
}

func (r *Registry) AssignRole(principal string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[principal] = role
}

func (r *Registry) SaveProfile(principal string, p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[principal] = p
}

func (r *Registry) Profile(principal string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[principal]
	return p, ok
}

// RecordOwner ties a business to the admin principal that created it.
// The first writer wins; ownership never moves.
func (r *Registry) RecordOwner(businessID, principal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[businessID]; !ok {
		r.owners[businessID] = principal
	}
}

func (r *Registry) Owner(businessID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.owners[businessID]
	return p, ok
}
