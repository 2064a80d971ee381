package auth

import "fmt"

// Gate authorizes mutating operations by caller role. Reads used by the
// public booking pages never go through the gate.
type Gate struct {
	registry *Registry
}

func NewGate(registry *Registry) *Gate {
	return &Gate{registry: registry}
}

// RequireAdmin allows only admin principals.
func (g *Gate) RequireAdmin(principal string) error {
	if g.registry.RoleOf(principal) != RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrUnauthorized)
	}
	return nil
}

// RequireOwner allows only the admin that owns the business. A business with
// no recorded owner is not mutable through the gate.
func (g *Gate) RequireOwner(principal, businessID string) error {
	if err := g.RequireAdmin(principal); err != nil {
		return err
	}
	owner, ok := g.registry.Owner(businessID)
	if !ok || owner != principal {
		return fmt.Errorf("%w: caller does not own business %s", ErrUnauthorized, businessID)
	}
	return nil
}
