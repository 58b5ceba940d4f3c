package agent

import (
	"strings"

	"agentfarm/internal/store"
)

// New instantiates the agent implementation for a roster record. Unknown
// types fall back to the custom agent so a typo in the roster degrades
// instead of dropping the worker.
func New(deps Deps, record store.Agent) Agent {
	switch record.Type {
	case store.TypeResearch:
		return NewResearch(deps, record)
	case store.TypeCode:
		return NewCode(deps, record)
	case store.TypeContent:
		return NewContent(deps, record)
	case store.TypeTrading:
		return NewTrading(deps, record)
	default:
		return NewCustom(deps, record)
	}
}

// ForTask matches one pending task to the best available agent record.
//
// Priority order: the agent named on the task if it is not busy, then an
// idle agent of the task's preferred type, then any idle agent. Nil when
// nobody can take it this cycle.
func ForTask(deps Deps, task store.Task, roster []store.Agent) Agent {
	if name := strings.TrimSpace(task.Agent); name != "" {
		for _, record := range roster {
			if record.Name == name && record.Status != store.AgentWorking && record.Status != store.AgentDisabled {
				return New(deps, record)
			}
		}
	}

	var idle []store.Agent
	for _, record := range roster {
		if record.Status == "" || record.Status == store.AgentIdle || record.Status == store.AgentCompleted {
			idle = append(idle, record)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	wanted := preferredType(task)
	for _, record := range idle {
		if record.Type == wanted {
			return New(deps, record)
		}
	}
	return New(deps, idle[0])
}
