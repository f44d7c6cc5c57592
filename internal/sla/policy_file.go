package sla

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
)

// PolicyFile is the YAML document loaded from SLA_POLICY_FILE:
//
//	defaults:
//	  URGENT: {first_response_minutes: 15, resolution_minutes: 240}
//	rules:
//	  - priority: URGENT
//	    issue_type: BILLING
//	    first_response_minutes: 30
//	    resolution_minutes: 480
type PolicyFile struct {
	Defaults map[domain.TicketPriority]domain.SLAPolicy `yaml:"defaults"`
	Rules    []PolicyRule                               `yaml:"rules"`
}

// PolicyRule becomes one sla_configs row. An empty IssueType is priority-wide.
type PolicyRule struct {
	Priority             domain.TicketPriority `yaml:"priority"`
	IssueType            domain.IssueType      `yaml:"issue_type"`
	FirstResponseMinutes int                   `yaml:"first_response_minutes"`
	ResolutionMinutes    int                   `yaml:"resolution_minutes"`
}

// LoadPolicyFile reads and validates a policy file.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sla policy file: %w", err)
	}
	return ParsePolicyFile(data)
}

func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sla policy file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *PolicyFile) validate() error {
	for priority, policy := range f.Defaults {
		if !priority.Valid() {
			return fmt.Errorf("sla policy file: unknown priority %q in defaults", priority)
		}
		if err := validateMinutes(policy.FirstResponseMinutes, policy.ResolutionMinutes); err != nil {
			return fmt.Errorf("sla policy file: defaults %s: %w", priority, err)
		}
	}
	seen := make(map[string]bool, len(f.Rules))
	for i, rule := range f.Rules {
		if !rule.Priority.Valid() {
			return fmt.Errorf("sla policy file: rule %d: unknown priority %q", i, rule.Priority)
		}
		if rule.IssueType != "" && !rule.IssueType.Valid() {
			return fmt.Errorf("sla policy file: rule %d: unknown issue type %q", i, rule.IssueType)
		}
		if err := validateMinutes(rule.FirstResponseMinutes, rule.ResolutionMinutes); err != nil {
			return fmt.Errorf("sla policy file: rule %d: %w", i, err)
		}
		key := string(rule.Priority) + "/" + string(rule.IssueType)
		if seen[key] {
			return fmt.Errorf("sla policy file: rule %d duplicates %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

func validateMinutes(firstResponse, resolution int) error {
	if firstResponse <= 0 || resolution <= 0 {
		return fmt.Errorf("minutes must be positive")
	}
	if firstResponse > resolution {
		return fmt.Errorf("first response budget exceeds resolution budget")
	}
	return nil
}

// MergeDefaults overlays the file's defaults onto base and returns the result.
func (f *PolicyFile) MergeDefaults(base PolicyTable) PolicyTable {
	merged := base.Clone()
	for priority, policy := range f.Defaults {
		merged[priority] = policy
	}
	return merged
}

// Seed upserts every rule into the config repository.
func (f *PolicyFile) Seed(ctx context.Context, configs repository.SLAConfigRepository) (int, error) {
	for i, rule := range f.Rules {
		cfg := &domain.SLAConfig{
			Priority:             rule.Priority,
			FirstResponseMinutes: rule.FirstResponseMinutes,
			ResolutionMinutes:    rule.ResolutionMinutes,
		}
		if rule.IssueType != "" {
			issueType := rule.IssueType
			cfg.IssueType = &issueType
		}
		if err := configs.Upsert(ctx, cfg); err != nil {
			return i, fmt.Errorf("seed sla rule %s/%s: %w", rule.Priority, rule.IssueType, err)
		}
	}
	return len(f.Rules), nil
}
