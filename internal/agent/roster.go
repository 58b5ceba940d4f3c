package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"agentfarm/internal/store"
)

// RosterEntry is one agent definition in a roster file.
type RosterEntry struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type rosterFile struct {
	Agents []RosterEntry `yaml:"agents"`
}

// LoadRoster reads an agent roster from a YAML file and binds it to a
// machine.
func LoadRoster(path, machine string) ([]store.Agent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("roster %s defines no agents", path)
	}

	roster := make([]store.Agent, 0, len(file.Agents))
	for _, entry := range file.Agents {
		if entry.Name == "" {
			return nil, fmt.Errorf("roster %s has an agent with no name", path)
		}
		model := entry.Model
		if model == "" {
			model = "auto"
		}
		roster = append(roster, store.Agent{
			Name:         entry.Name,
			Type:         parseAgentType(entry.Type),
			Model:        model,
			Machine:      machine,
			Status:       store.AgentIdle,
			SystemPrompt: entry.SystemPrompt,
		})
	}
	return roster, nil
}

// DefaultRoster is the starter trio registered when a machine comes up with
// no agents of its own.
func DefaultRoster(machine string) []store.Agent {
	return []store.Agent{
		{Name: "scout", Type: store.TypeResearch, Model: "auto", Machine: machine, Status: store.AgentIdle},
		{Name: "builder", Type: store.TypeCode, Model: "auto", Machine: machine, Status: store.AgentIdle},
		{Name: "writer", Type: store.TypeContent, Model: "auto", Machine: machine, Status: store.AgentIdle},
	}
}

func parseAgentType(s string) store.AgentType {
	switch store.AgentType(s) {
	case store.TypeResearch, store.TypeCode, store.TypeContent, store.TypeTrading:
		return store.AgentType(s)
	default:
		return store.TypeCustom
	}
}
