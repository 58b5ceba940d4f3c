package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and dry runs. Records keep
// arrival order, matching the stable-sort assumptions of the dispatcher.
type Memory struct {
	mu       sync.Mutex
	config   map[string]string
	machines map[string]Machine
	agents   []Agent
	projects []Project
	tasks    []Task
	revenue  []RevenueEntry
	activity []ActivityEntry

	// Now is the clock used for created/completed timestamps. Tests override it.
	Now func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		config:   make(map[string]string),
		machines: make(map[string]Machine),
		Now:      time.Now,
	}
}

func (m *Memory) Config(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.config))
	for k, v := range m.config {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetConfigValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

func (m *Memory) DeleteConfigValue(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.config, key)
	return nil
}

func (m *Memory) UpsertMachine(ctx context.Context, mc Machine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc.LastSeen = m.Now()
	m.machines[mc.Name] = mc
	return nil
}

// Machines returns all heartbeat records. Not part of the Store contract;
// used by the status command and tests.
func (m *Memory) Machines() []Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Machine, 0, len(m.machines))
	for _, mc := range m.machines {
		out = append(out, mc)
	}
	return out
}

// AddAgent registers an agent config. Returns the assigned id.
func (m *Memory) AddAgent(a Agent) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AgentIdle
	}
	m.agents = append(m.agents, a)
	return a.ID
}

func (m *Memory) Agents(ctx context.Context, machine string) ([]Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Agent
	for _, a := range m.agents {
		if machine == "" || strings.EqualFold(a.Machine, machine) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.agents {
		if m.agents[i].ID == id {
			m.agents[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RecordAgentOutcome(ctx context.Context, id string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.agents {
		if m.agents[i].ID != id {
			continue
		}
		a := &m.agents[i]
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		n := float64(a.TasksCompleted)
		a.SuccessRate = (a.SuccessRate*n + outcome) / (n + 1)
		a.TasksCompleted++
		return nil
	}
	return ErrNotFound
}

func (m *Memory) CreateProject(ctx context.Context, p Project) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProjectIdea
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.Now()
	}
	if p.LastActivity.IsZero() {
		p.LastActivity = p.CreatedAt
	}
	m.projects = append(m.projects, p)
	return p.ID, nil
}

func (m *Memory) Projects(ctx context.Context, status ProjectStatus) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Project
	for _, p := range m.projects {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			m.projects[i].Status = status
			if reason != "" {
				m.projects[i].ArchivedReason = reason
			}
			m.projects[i].LastActivity = m.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) UpdateProjectRevenue(ctx context.Context, id string, total, last30 float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			m.projects[i].RevenueTotal = total
			m.projects[i].Revenue30d = last30
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) UpdateProjectViability(ctx context.Context, id string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			s := score
			m.projects[i].ViabilityScore = &s
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateTask(ctx context.Context, t Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.Now()
	}
	m.tasks = append(m.tasks, t)
	return t.ID, nil
}

func (m *Memory) Tasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Project != "" && !strings.EqualFold(t.Project, f.Project) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID != id {
			continue
		}
		t := &m.tasks[i]
		if u.Status != "" {
			t.Status = u.Status
			switch u.Status {
			case TaskInProgress:
				now := m.Now()
				t.StartedAt = &now
			case TaskDone, TaskFailed:
				now := m.Now()
				t.CompletedAt = &now
			}
		}
		if u.Result != "" {
			t.Result = u.Result
		}
		if u.Agent != "" {
			t.Agent = u.Agent
		}
		if u.TokensUsed != 0 {
			t.TokensUsed = u.TokensUsed
		}
		if u.CostUSD != 0 {
			t.CostUSD = u.CostUSD
		}
		return nil
	}
	return ErrNotFound
}

func (m *Memory) LogRevenue(ctx context.Context, e RevenueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date.IsZero() {
		e.Date = m.Now()
	}
	m.revenue = append(m.revenue, e)
	return nil
}

func (m *Memory) RevenueSince(ctx context.Context, project string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, e := range m.revenue {
		if strings.EqualFold(e.Project, project) && !e.Date.Before(since) {
			total += e.Amount
		}
	}
	return total, nil
}

func (m *Memory) LogActivity(ctx context.Context, e ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.Now()
	}
	m.activity = append(m.activity, e)
	return nil
}

// Activities returns a copy of the activity log for tests and the status command.
func (m *Memory) Activities() []ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActivityEntry, len(m.activity))
	copy(out, m.activity)
	return out
}
