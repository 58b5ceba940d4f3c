package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"agentfarm/internal/logging"
	"agentfarm/internal/store"
)

const gitTimeout = 2 * time.Minute

// SelfUpdater pulls new commits from origin/main into the running checkout.
// The caller is expected to exit after a successful update so the process
// supervisor restarts the new code.
type SelfUpdater struct {
	repoDir string
	store   store.Store
	logger  logging.Logger
}

func NewSelfUpdater(repoDir string, s store.Store, logger logging.Logger) *SelfUpdater {
	return &SelfUpdater{repoDir: repoDir, store: s, logger: logging.OrNop(logger)}
}

// CheckAndUpdate fetches origin/main and pulls when the remote is ahead.
// The update is skipped while any task is in progress. Returns true when
// new code was pulled and a restart is required.
func (u *SelfUpdater) CheckAndUpdate(ctx context.Context) (bool, error) {
	if _, err := u.git(ctx, "fetch", "origin", "main"); err != nil {
		return false, err
	}
	local, err := u.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, err
	}
	remote, err := u.git(ctx, "rev-parse", "origin/main")
	if err != nil {
		return false, err
	}
	if local == remote {
		u.logger.Debug("self-update: already up to date")
		return false, nil
	}

	inProgress, err := u.store.Tasks(ctx, store.TaskFilter{Status: store.TaskInProgress})
	if err == nil && len(inProgress) > 0 {
		u.logger.Info("self-update skipped: %d tasks in progress", len(inProgress))
		return false, nil
	}

	u.logger.Info("self-update: new commits found (%s -> %s)", short(local), short(remote))
	log, _ := u.git(ctx, "log", "--oneline", local+"..origin/main")
	if log != "" {
		u.logger.Info("new commits:\n%s", log)
	}

	if _, err := u.git(ctx, "pull", "origin", "main"); err != nil {
		return false, err
	}
	u.logger.Info("self-update: git pull completed")

	if err := u.store.LogActivity(ctx, store.ActivityEntry{
		Agent:  "orchestrator",
		Action: "self_update",
		Result: fmt.Sprintf("Updated %s -> %s\n%s", short(local), short(remote), log),
	}); err != nil {
		u.logger.Warn("self-update activity log failed: %v", err)
	}
	return true, nil
}

func (u *SelfUpdater) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = u.repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
