package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RoleResolution(t *testing.T) {
	reg := NewRegistry([]string{"root"})

	assert.Equal(t, RoleAdmin, reg.RoleOf("root"))
	assert.Equal(t, RoleGuest, reg.RoleOf("stranger"))
	assert.Equal(t, RoleGuest, reg.RoleOf(""))

	reg.AssignRole("alex", RoleUser)
	assert.Equal(t, RoleUser, reg.RoleOf("alex"))

	// Reassignment overwrites.
	reg.AssignRole("alex", RoleAdmin)
	assert.Equal(t, RoleAdmin, reg.RoleOf("alex"))
}

func TestRegistry_Profiles(t *testing.T) {
	reg := NewRegistry(nil)

	_, ok := reg.Profile("alex")
	assert.False(t, ok)

	reg.SaveProfile("alex", Profile{Name: "Alex"})
	p, ok := reg.Profile("alex")
	assert.True(t, ok)
	assert.Equal(t, "Alex", p.Name)

	reg.SaveProfile("alex", Profile{Name: "Alexandra"})
	p, _ = reg.Profile("alex")
	assert.Equal(t, "Alexandra", p.Name)
}

func TestRegistry_OwnerFirstWriterWins(t *testing.T) {
	reg := NewRegistry(nil)

	reg.RecordOwner("biz", "first")
	reg.RecordOwner("biz", "second")

	owner, ok := reg.Owner("biz")
	assert.True(t, ok)
	assert.Equal(t, "first", owner)
}

func TestGate_RequireAdmin(t *testing.T) {
	reg := NewRegistry([]string{"root"})
	gate := NewGate(reg)

	assert.NoError(t, gate.RequireAdmin("root"))
	assert.ErrorIs(t, gate.RequireAdmin("stranger"), ErrUnauthorized)
	assert.ErrorIs(t, gate.RequireAdmin(""), ErrUnauthorized)

	// A plain user is not enough.
	reg.AssignRole("alex", RoleUser)
	assert.ErrorIs(t, gate.RequireAdmin("alex"), ErrUnauthorized)
}

func TestGate_RequireOwner(t *testing.T) {
	reg := NewRegistry([]string{"root", "other-admin"})
	gate := NewGate(reg)
	reg.RecordOwner("biz", "root")

	assert.NoError(t, gate.RequireOwner("root", "biz"))

	// Admin role alone does not grant another admin's business.
	assert.ErrorIs(t, gate.RequireOwner("other-admin", "biz"), ErrUnauthorized)

	// A business with no recorded owner is locked.
	assert.ErrorIs(t, gate.RequireOwner("root", "unowned"), ErrUnauthorized)

	assert.ErrorIs(t, gate.RequireOwner("stranger", "biz"), ErrUnauthorized)
}
