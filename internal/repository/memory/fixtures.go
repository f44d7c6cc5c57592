package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

type userFixture struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Email  string      `yaml:"email"`
	Role   domain.Role `yaml:"role"`
	Active *bool       `yaml:"active"`
}

// LoadUsers reads a YAML list of accounts for the in-memory store. Accounts
// are active unless they say otherwise.
func LoadUsers(path string) ([]domain.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseUsers(data)
}

func ParseUsers(data []byte) ([]domain.User, error) {
	var fixtures []userFixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	seen := make(map[string]bool, len(fixtures))
	users := make([]domain.User, 0, len(fixtures))
	for i, f := range fixtures {
		if f.ID == "" {
			return nil, fmt.Errorf("user %d: id is required", i)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("user %s: duplicate id", f.ID)
		}
		if !f.Role.Valid() {
			return nil, fmt.Errorf("user %s: invalid role %q", f.ID, f.Role)
		}
		seen[f.ID] = true
		active := f.Active == nil || *f.Active
		users = append(users, domain.User{ID: f.ID, Name: f.Name, Email: f.Email, Role: f.Role, Active: active})
	}
	return users, nil
}
