package anima

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity describes the persona an agent presents: who it is, what it
// is for, and the behavioral rules its responses must follow. One
// identity is bound per session; responses are validated against it.
//
// Identity values are treated as immutable. Apply changes through
// Update, which returns a new value with a fresh UpdatedAt.
type Identity struct {
	ID      string   `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()"`
	Name    string   `db:"name" type:"text" constraints:"notnull"`
	Purpose string   `db:"purpose" type:"text" constraints:"notnull"`
	Traits  []string `db:"traits" type:"jsonb" default:"'[]'"`
	Rules   []string `db:"rules" type:"jsonb" default:"'[]'"`

	CreatedAt time.Time `db:"created_at" type:"timestamp" constraints:"notnull"`
	UpdatedAt time.Time `db:"updated_at" type:"timestamp" constraints:"notnull"`
}

// NewIdentity creates an identity with the given name and purpose.
func NewIdentity(name, purpose string) *Identity {
	now := time.Now()
	return &Identity{
		ID:        uuid.New().String(),
		Name:      name,
		Purpose:   purpose,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultIdentity derives a minimal identity from an agent ID. Used when
// a session is created without an explicit persona.
func DefaultIdentity(agentID string) *Identity {
	name := strings.ReplaceAll(agentID, "_", " ")
	if name == "" {
		name = "Agent"
	}
	return NewIdentity(name, fmt.Sprintf("Assist users as %s", name))
}

// IdentityUpdate carries the fields an Update call may change. Nil
// fields are left as-is.
type IdentityUpdate struct {
	Name    *string
	Purpose *string
	Traits  []string
	Rules   []string
}

// Update returns a copy of the identity with the given changes applied
// and UpdatedAt refreshed. The receiver is not modified.
func (id *Identity) Update(u IdentityUpdate) *Identity {
	next := *id
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Purpose != nil {
		next.Purpose = *u.Purpose
	}
	if u.Traits != nil {
		next.Traits = append([]string(nil), u.Traits...)
	}
	if u.Rules != nil {
		next.Rules = append([]string(nil), u.Rules...)
	}
	next.UpdatedAt = time.Now()
	return &next
}

// Render formats the identity block for a system prompt.
func (id *Identity) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", id.Name)
	fmt.Fprintf(&b, "Purpose: %s", id.Purpose)
	if len(id.Traits) > 0 {
		fmt.Fprintf(&b, "\nTraits: %s", strings.Join(id.Traits, ", "))
	}
	return b.String()
}

// RenderRules formats the rules block for a system prompt. Returns the
// empty string when the identity has no rules.
func (id *Identity) RenderRules() string {
	if len(id.Rules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Rules you must follow:")
	for _, rule := range id.Rules {
		b.WriteString("\n- ")
		b.WriteString(rule)
	}
	return b.String()
}
