// internal/message/role.go
// Player roles and their wire spellings.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies a seat in a game.
type Role string

const (
	RoleInterrogator Role = "I"
	RoleAI           Role = "A"
	RoleHuman        Role = "H"

	// legacyWitness is what the matchmaker still sends for the human witness.
	legacyWitness = "W"
)

// ParseRole normalises a wire role. The legacy witness alias W maps to H.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(RoleInterrogator):
		return RoleInterrogator, nil
	case string(RoleAI):
		return RoleAI, nil
	case string(RoleHuman), legacyWitness:
		return RoleHuman, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	return r == RoleInterrogator || r == RoleAI || r == RoleHuman
}

func (r Role) String() string { return string(r) }

// UnmarshalJSON normalises the role at the decode boundary.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
