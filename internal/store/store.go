// Package store defines the farm's persistent records and the Store contract
// every backend (record-store API, sqlite, in-memory) implements.
//
// The orchestration core holds only transient in-memory views of projects and
// tasks per loop iteration; the store owns the durable state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("not found")

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectIdea     ProjectStatus = "idea"
	ProjectResearch ProjectStatus = "research"
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectScaling  ProjectStatus = "scaling"
	ProjectArchived ProjectStatus = "archived"
)

// ProjectSource records where a project idea came from.
type ProjectSource string

const (
	SourceHuman     ProjectSource = "human"
	SourceGenerated ProjectSource = "generated"
)

// TaskStatus is the execution state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskNeedsHuman TaskStatus = "needs_human"
)

// Priority orders pending tasks for dispatch.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority; lower runs first. Unknown
// priorities rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// AgentStatus is the operational state of a configured agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentWorking   AgentStatus = "working"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"
	AgentDisabled  AgentStatus = "disabled"
)

// AgentType selects the agent implementation for a task.
type AgentType string

const (
	TypeResearch AgentType = "research"
	TypeCode     AgentType = "code"
	TypeContent  AgentType = "content"
	TypeTrading  AgentType = "trading"
	TypeCustom   AgentType = "custom"
)

// TaskKind is the explicit task sub-type, set once at creation time so
// dispatch never re-scans instruction text.
type TaskKind string

const (
	KindViabilityCheck  TaskKind = "viability_check"
	KindGenerateIdeas   TaskKind = "generate_ideas"
	KindScalingAnalysis TaskKind = "scaling_analysis"
	KindResearch        TaskKind = "research"
	KindWriteCode       TaskKind = "write_code"
	KindReviewCode      TaskKind = "review_code"
	KindLandingPage     TaskKind = "landing_page"
	KindCreateAPI       TaskKind = "create_api"
	KindDeploy          TaskKind = "deploy"
	KindSEOArticle      TaskKind = "seo_article"
	KindProductReview   TaskKind = "product_review"
	KindEmailSequence   TaskKind = "email_sequence"
	KindSocialPosts     TaskKind = "social_posts"
	KindLandingCopy     TaskKind = "landing_copy"
	KindCryptoAnalysis  TaskKind = "crypto_analysis"
	KindArbitrageScan   TaskKind = "arbitrage_scan"
	KindMarketSummary   TaskKind = "market_summary"
	KindBacktest        TaskKind = "backtest"
	KindGeneral         TaskKind = "general"
)

// Project is a unit of autonomous revenue-seeking work.
type Project struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         ProjectStatus `json:"status"`
	Source         ProjectSource `json:"source"`
	Description    string        `json:"description"`
	Goal           string        `json:"goal"`
	RevenueTotal   float64       `json:"revenue_total"`
	Revenue30d     float64       `json:"revenue_30d"`
	CostTotal      float64       `json:"cost_total"`
	ViabilityScore *float64      `json:"viability_score,omitempty"`
	ArchivedReason string        `json:"archived_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivity   time.Time     `json:"last_activity"`
}

// Task is a discrete unit of instructions dispatched to one agent.
// Project references the project by name, not by foreign key.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Project       string     `json:"project"`
	Agent         string     `json:"agent"`
	Status        TaskStatus `json:"status"`
	Priority      Priority   `json:"priority"`
	Kind          TaskKind   `json:"kind"`
	Instructions  string     `json:"instructions"`
	Result        string     `json:"result,omitempty"`
	RequiresHuman bool       `json:"requires_human"`
	TokensUsed    int        `json:"tokens_used"`
	CostUSD       float64    `json:"cost_usd"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Agent is a stateless executor configuration. Executors are re-instantiated
// per task from this record and own no persistent memory of their own.
type Agent struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Type           AgentType   `json:"type"`
	Model          string      `json:"model"`
	Machine        string      `json:"machine"`
	Status         AgentStatus `json:"status"`
	SystemPrompt   string      `json:"system_prompt,omitempty"`
	TasksCompleted int         `json:"tasks_completed"`
	SuccessRate    float64     `json:"success_rate"`
}

// Machine is a heartbeat record for one orchestrator host.
type Machine struct {
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	OS       string    `json:"os"`
	RAMGB    float64   `json:"ram_gb"`
	CPUCores int       `json:"cpu_cores"`
	Status   string    `json:"status"`
	Models   []string  `json:"models,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// RevenueEntry is one row of the authoritative revenue ledger.
type RevenueEntry struct {
	ID       string    `json:"id"`
	Project  string    `json:"project"`
	Source   string    `json:"source"`
	Currency string    `json:"currency"`
	Amount   float64   `json:"amount"`
	Notes    string    `json:"notes,omitempty"`
	Date     time.Time `json:"date"`
}

// ActivityEntry is one row of the activity log.
type ActivityEntry struct {
	ID         string    `json:"id"`
	Agent      string    `json:"agent"`
	Project    string    `json:"project"`
	Action     string    `json:"action"`
	Result     string    `json:"result,omitempty"`
	ModelUsed  string    `json:"model_used,omitempty"`
	TokensUsed int       `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	Timestamp  time.Time `json:"timestamp"`
}

// TaskFilter narrows Tasks queries. Zero values match everything.
type TaskFilter struct {
	Status  TaskStatus
	Project string
}

// TaskUpdate carries a partial task mutation. Nil/zero fields are left
// untouched; CompletedAt is set by the store on transition into done or
// failed.
type TaskUpdate struct {
	Status     TaskStatus
	Result     string
	Agent      string
	TokensUsed int
	CostUSD    float64
}

// Store is the contract for the external structured store. Implementations
// must tolerate concurrent callers; per-record updates are single-writer
// (read-modify-write under a store-side lock or equivalent).
type Store interface {
	// Config is the flat key/value table, reloaded once per loop iteration.
	Config(ctx context.Context) (map[string]string, error)
	SetConfigValue(ctx context.Context, key, value string) error
	// DeleteConfigValue removes a key; deleting an absent key is not an error.
	DeleteConfigValue(ctx context.Context, key string) error

	UpsertMachine(ctx context.Context, m Machine) error

	// Agents returns agent configs, optionally filtered by machine affinity.
	Agents(ctx context.Context, machine string) ([]Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error
	// RecordAgentOutcome bumps tasks_completed and folds the outcome into the
	// rolling success rate atomically.
	RecordAgentOutcome(ctx context.Context, id string, success bool) error

	CreateProject(ctx context.Context, p Project) (string, error)
	// Projects returns projects, optionally filtered by status ("" = all).
	Projects(ctx context.Context, status ProjectStatus) ([]Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus, reason string) error
	UpdateProjectRevenue(ctx context.Context, id string, total, last30 float64) error
	UpdateProjectViability(ctx context.Context, id string, score float64) error

	CreateTask(ctx context.Context, t Task) (string, error)
	Tasks(ctx context.Context, f TaskFilter) ([]Task, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error

	LogRevenue(ctx context.Context, e RevenueEntry) error
	// RevenueSince sums ledger amounts for a project from the cutoff onward.
	RevenueSince(ctx context.Context, project string, since time.Time) (float64, error)

	LogActivity(ctx context.Context, e ActivityEntry) error
}
