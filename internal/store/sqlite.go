package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite is a local Store backend for single-machine and development
// deployments. It mirrors the record-store semantics over a sqlite file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS machines (
	name      TEXT PRIMARY KEY,
	ip        TEXT NOT NULL DEFAULT '',
	os        TEXT NOT NULL DEFAULT '',
	ram_gb    REAL NOT NULL DEFAULT 0,
	cpu_cores INTEGER NOT NULL DEFAULT 0,
	status    TEXT NOT NULL DEFAULT 'online',
	models    TEXT NOT NULL DEFAULT '',
	last_seen TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	type            TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT 'auto',
	machine         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'idle',
	system_prompt   TEXT NOT NULL DEFAULT '',
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	success_rate    REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'idea',
	source          TEXT NOT NULL DEFAULT 'human',
	description     TEXT NOT NULL DEFAULT '',
	goal            TEXT NOT NULL DEFAULT '',
	revenue_total   REAL NOT NULL DEFAULT 0,
	revenue_30d     REAL NOT NULL DEFAULT 0,
	cost_total      REAL NOT NULL DEFAULT 0,
	viability_score REAL,
	archived_reason TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	last_activity   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	project        TEXT NOT NULL DEFAULT '',
	agent          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	priority       TEXT NOT NULL DEFAULT 'medium',
	kind           TEXT NOT NULL DEFAULT 'general',
	instructions   TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL DEFAULT '',
	requires_human INTEGER NOT NULL DEFAULT 0,
	tokens_used    INTEGER NOT NULL DEFAULT 0,
	cost_usd       REAL NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	started_at     TIMESTAMP,
	completed_at   TIMESTAMP,
	seq            INTEGER
);
CREATE TABLE IF NOT EXISTS revenue (
	id       TEXT PRIMARY KEY,
	project  TEXT NOT NULL,
	source   TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT 'USD',
	amount   REAL NOT NULL DEFAULT 0,
	notes    TEXT NOT NULL DEFAULT '',
	date     TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS activity (
	id          TEXT PRIMARY KEY,
	agent       TEXT NOT NULL DEFAULT '',
	project     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL DEFAULT '',
	model_used  TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	cost_usd    REAL NOT NULL DEFAULT 0,
	timestamp   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
CREATE INDEX IF NOT EXISTS idx_revenue_project ON revenue(project);
`

// OpenSQLite opens (creating if needed) a sqlite-backed store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps agent stat updates atomic.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Config(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLite) DeleteConfigValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	return err
}

func (s *SQLite) UpsertMachine(ctx context.Context, m Machine) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO machines(name, ip, os, ram_gb, cpu_cores, status, models, last_seen)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
			ip = excluded.ip, os = excluded.os, ram_gb = excluded.ram_gb,
			cpu_cores = excluded.cpu_cores, status = excluded.status,
			models = excluded.models, last_seen = excluded.last_seen`,
		m.Name, m.IP, m.OS, m.RAMGB, m.CPUCores, m.Status,
		strings.Join(m.Models, ","), time.Now().UTC())
	return err
}

func (s *SQLite) Agents(ctx context.Context, machine string) ([]Agent, error) {
	query := `SELECT id, name, type, model, machine, status, system_prompt, tasks_completed, success_rate FROM agents`
	args := []any{}
	if machine != "" {
		query += ` WHERE machine = ? COLLATE NOCASE`
		args = append(args, machine)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Model, &a.Machine,
			&a.Status, &a.SystemPrompt, &a.TasksCompleted, &a.SuccessRate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddAgent registers an agent config, assigning an id when absent.
func (s *SQLite) AddAgent(ctx context.Context, a Agent) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AgentIdle
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents(id, name, type, model, machine, status, system_prompt, tasks_completed, success_rate)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Type, a.Model, a.Machine, a.Status, a.SystemPrompt, a.TasksCompleted, a.SuccessRate)
	return a.ID, err
}

func (s *SQLite) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	return s.execOne(ctx, `UPDATE agents SET status = ? WHERE id = ?`, status, id)
}

func (s *SQLite) RecordAgentOutcome(ctx context.Context, id string, success bool) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	// Single-statement read-modify-write; MaxOpenConns(1) serializes writers.
	return s.execOne(ctx,
		`UPDATE agents SET
			success_rate = (success_rate * tasks_completed + ?) / (tasks_completed + 1),
			tasks_completed = tasks_completed + 1
		 WHERE id = ?`, outcome, id)
}

func (s *SQLite) CreateProject(ctx context.Context, p Project) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProjectIdea
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastActivity.IsZero() {
		p.LastActivity = p.CreatedAt
	}
	var score any
	if p.ViabilityScore != nil {
		score = *p.ViabilityScore
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects(id, name, status, source, description, goal,
			revenue_total, revenue_30d, cost_total, viability_score,
			archived_reason, created_at, last_activity)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Status, p.Source, p.Description, p.Goal,
		p.RevenueTotal, p.Revenue30d, p.CostTotal, score,
		p.ArchivedReason, p.CreatedAt, p.LastActivity)
	return p.ID, err
}

func (s *SQLite) Projects(ctx context.Context, status ProjectStatus) ([]Project, error) {
	query := `SELECT id, name, status, source, description, goal,
		revenue_total, revenue_30d, cost_total, viability_score,
		archived_reason, created_at, last_activity FROM projects`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		var score sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.Source, &p.Description, &p.Goal,
			&p.RevenueTotal, &p.Revenue30d, &p.CostTotal, &score,
			&p.ArchivedReason, &p.CreatedAt, &p.LastActivity); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			p.ViabilityScore = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus, reason string) error {
	if reason != "" {
		return s.execOne(ctx,
			`UPDATE projects SET status = ?, archived_reason = ?, last_activity = ? WHERE id = ?`,
			status, reason, time.Now().UTC(), id)
	}
	return s.execOne(ctx,
		`UPDATE projects SET status = ?, last_activity = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
}

func (s *SQLite) UpdateProjectRevenue(ctx context.Context, id string, total, last30 float64) error {
	return s.execOne(ctx,
		`UPDATE projects SET revenue_total = ?, revenue_30d = ? WHERE id = ?`, total, last30, id)
}

func (s *SQLite) UpdateProjectViability(ctx context.Context, id string, score float64) error {
	return s.execOne(ctx, `UPDATE projects SET viability_score = ? WHERE id = ?`, score, id)
}

func (s *SQLite) CreateTask(ctx context.Context, t Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Kind == "" {
		t.Kind = KindGeneral
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, title, project, agent, status, priority, kind,
			instructions, result, requires_human, tokens_used, cost_usd, created_at,
			seq)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))`,
		t.ID, t.Title, t.Project, t.Agent, t.Status, t.Priority, t.Kind,
		t.Instructions, t.Result, t.RequiresHuman, t.TokensUsed, t.CostUSD, t.CreatedAt)
	return t.ID, err
}

func (s *SQLite) Tasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	query := `SELECT id, title, project, agent, status, priority, kind,
		instructions, result, requires_human, tokens_used, cost_usd,
		created_at, started_at, completed_at FROM tasks`
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, `status = ?`)
		args = append(args, f.Status)
	}
	if f.Project != "" {
		clauses = append(clauses, `project = ? COLLATE NOCASE`)
		args = append(args, f.Project)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	// seq preserves arrival order for stable priority ties.
	query += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var t Task
		var started, completed sql.NullTime
		if err := rows.Scan(&t.ID, &t.Title, &t.Project, &t.Agent, &t.Status, &t.Priority, &t.Kind,
			&t.Instructions, &t.Result, &t.RequiresHuman, &t.TokensUsed, &t.CostUSD,
			&t.CreatedAt, &started, &completed); err != nil {
			return nil, err
		}
		if started.Valid {
			ts := started.Time
			t.StartedAt = &ts
		}
		if completed.Valid {
			ts := completed.Time
			t.CompletedAt = &ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	var sets []string
	var args []any
	if u.Status != "" {
		sets = append(sets, `status = ?`)
		args = append(args, u.Status)
		switch u.Status {
		case TaskInProgress:
			sets = append(sets, `started_at = ?`)
			args = append(args, time.Now().UTC())
		case TaskDone, TaskFailed:
			sets = append(sets, `completed_at = ?`)
			args = append(args, time.Now().UTC())
		}
	}
	if u.Result != "" {
		sets = append(sets, `result = ?`)
		args = append(args, u.Result)
	}
	if u.Agent != "" {
		sets = append(sets, `agent = ?`)
		args = append(args, u.Agent)
	}
	if u.TokensUsed != 0 {
		sets = append(sets, `tokens_used = ?`)
		args = append(args, u.TokensUsed)
	}
	if u.CostUSD != 0 {
		sets = append(sets, `cost_usd = ?`)
		args = append(args, u.CostUSD)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	return s.execOne(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
}

func (s *SQLite) LogRevenue(ctx context.Context, e RevenueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revenue(id, project, source, currency, amount, notes, date)
		 VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.Project, e.Source, e.Currency, e.Amount, e.Notes, e.Date)
	return err
}

func (s *SQLite) RevenueSince(ctx context.Context, project string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM revenue WHERE project = ? COLLATE NOCASE AND date >= ?`,
		project, since.UTC()).Scan(&total)
	return total, err
}

func (s *SQLite) LogActivity(ctx context.Context, e ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(id, agent, project, action, result, model_used, tokens_used, cost_usd, timestamp)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Agent, e.Project, e.Action, e.Result, e.ModelUsed, e.TokensUsed, e.CostUSD, e.Timestamp)
	return err
}

func (s *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
