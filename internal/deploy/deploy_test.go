package deploy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSSHConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DEPLOY_HOST", "")
	t.Setenv("DEPLOY_USER", "")
	t.Setenv("DEPLOY_SSH_KEY", "")
	t.Setenv("DEPLOY_PASSWORD", "")
	t.Setenv("DEPLOY_REMOTE_BASE", "")

	cfg := SSHConfigFromEnv()
	require.False(t, cfg.Configured())
	require.Equal(t, "root", cfg.User)
	require.Equal(t, 22, cfg.Port)
	require.Equal(t, "/var/www/vhosts", cfg.RemoteBase)
	require.Contains(t, cfg.KeyPath, "id_rsa")
}

func TestSSHConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("DEPLOY_HOST", "deploy.example.com")
	t.Setenv("DEPLOY_USER", "web")
	t.Setenv("DEPLOY_SSH_KEY", "/tmp/key")
	t.Setenv("DEPLOY_REMOTE_BASE", "/srv/sites")

	cfg := SSHConfigFromEnv()
	require.True(t, cfg.Configured())
	require.Equal(t, "web", cfg.User)
	require.Equal(t, "/tmp/key", cfg.KeyPath)
	require.Equal(t, "/srv/sites", cfg.RemoteBase)
}

func TestSkipArtifact(t *testing.T) {
	require.True(t, skipArtifact(".git"))
	require.True(t, skipArtifact("node_modules"))
	require.False(t, skipArtifact("index.html"))
}
