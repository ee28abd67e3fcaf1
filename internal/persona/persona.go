// Package persona defines the two agent personas of an ai-vs-ai debate.
package persona

import (
	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/sandbox"
)

// Persona represents the voice an agent speaks with for one side.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Side        core.Side `json:"side"`
	Role        string    `json:"role"`
	Emoji       string    `json:"emoji"`
	Description string    `json:"description"`
}

// DefaultPersonas returns the built-in personas, sideA first.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			ID:          "alpha",
			Name:        "Alpha",
			Side:        core.SideA,
			Role:        sandbox.RoleAgentA,
			Emoji:       "⚡",
			Description: "Opens the debate and argues for the first side",
		},
		{
			ID:          "omega",
			Name:        "Omega",
			Side:        core.SideB,
			Role:        sandbox.RoleAgentB,
			Emoji:       "\U0001F525",
			Description: "Answers every opening and argues for the second side",
		},
	}
}

// Get returns a persona by ID.
func Get(id string) *Persona {
	for _, p := range DefaultPersonas() {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// ForSide returns the persona speaking for side. Anything but sideB is Alpha.
func ForSide(side core.Side) Persona {
	personas := DefaultPersonas()
	if side == core.SideB {
		return personas[1]
	}
	return personas[0]
}

// List returns all available persona IDs.
func List() []string {
	personas := DefaultPersonas()
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}

// Valid checks if a persona ID is valid.
func Valid(id string) bool {
	return Get(id) != nil
}
