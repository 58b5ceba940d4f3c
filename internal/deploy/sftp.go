// Package deploy ships generated project artifacts to a remote host over
// SSH/SFTP and keeps the orchestrator binary current via git self-update.
package deploy

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"agentfarm/internal/logging"
)

const connectTimeout = 30 * time.Second

// skippedArtifacts are never uploaded.
var skippedArtifacts = []string{".git", "__pycache__", ".env", "venv", "node_modules"}

// SSHConfig locates and authenticates against the deployment host. Password
// auth is only attempted when no usable key is found.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	Password   string
	RemoteBase string
}

// SSHConfigFromEnv reads the DEPLOY_* environment variables.
func SSHConfigFromEnv() SSHConfig {
	cfg := SSHConfig{
		Host:       os.Getenv("DEPLOY_HOST"),
		Port:       22,
		User:       os.Getenv("DEPLOY_USER"),
		KeyPath:    os.Getenv("DEPLOY_SSH_KEY"),
		Password:   os.Getenv("DEPLOY_PASSWORD"),
		RemoteBase: os.Getenv("DEPLOY_REMOTE_BASE"),
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.KeyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.KeyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
	}
	if cfg.RemoteBase == "" {
		cfg.RemoteBase = "/var/www/vhosts"
	}
	return cfg
}

// Configured reports whether a target host is set. The code agent checks
// this before offering deployment at all.
func (c SSHConfig) Configured() bool { return c.Host != "" }

// Deployer uploads project directories to the remote web root.
type Deployer struct {
	cfg    SSHConfig
	logger logging.Logger
}

func NewDeployer(cfg SSHConfig, logger logging.Logger) *Deployer {
	return &Deployer{cfg: cfg, logger: logging.OrNop(logger)}
}

// Result reports one deployment.
type Result struct {
	URL      string
	Uploaded int
}

// DeploySite uploads every file under localDir into the domain's httpdocs
// directory, preserving relative paths.
func (d *Deployer) DeploySite(localDir, domain string) (*Result, error) {
	return d.upload(localDir, path.Join(d.cfg.RemoteBase, domain, "httpdocs"), domain)
}

// DeployApp uploads an application tree into the domain's app directory.
func (d *Deployer) DeployApp(localDir, domain string) (*Result, error) {
	return d.upload(localDir, path.Join(d.cfg.RemoteBase, domain, "app"), domain)
}

func (d *Deployer) upload(localDir, remoteDir, domain string) (*Result, error) {
	if !d.cfg.Configured() {
		return nil, fmt.Errorf("deploy host not configured")
	}
	client, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	sf, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("open sftp session: %w", err)
	}
	defer sf.Close()

	if err := sf.MkdirAll(remoteDir); err != nil {
		return nil, fmt.Errorf("create %s: %w", remoteDir, err)
	}

	uploaded := 0
	err = filepath.WalkDir(localDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if skipArtifact(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipArtifact(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		remote := path.Join(remoteDir, filepath.ToSlash(rel))
		if err := sf.MkdirAll(path.Dir(remote)); err != nil {
			return err
		}
		if err := d.put(sf, p, remote); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("deployed %d files to %s", uploaded, domain)
	return &Result{URL: "https://" + domain, Uploaded: uploaded}, nil
}

func (d *Deployer) put(sf *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := sf.Create(remote)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// CommandOutput is the result of one remote command.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunCommand executes a shell command on the deployment host.
func (d *Deployer) RunCommand(command string) (*CommandOutput, error) {
	if !d.cfg.Configured() {
		return nil, fmt.Errorf("deploy host not configured")
	}
	client, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	out := &CommandOutput{}
	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if !stderrors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %q: %w", command, err)
		}
		out.ExitCode = exitErr.ExitStatus()
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	return out, nil
}

func (d *Deployer) connect() (*ssh.Client, error) {
	auth, err := d.authMethods()
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}

func (d *Deployer) authMethods() ([]ssh.AuthMethod, error) {
	if key, err := os.ReadFile(d.cfg.KeyPath); err == nil {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", d.cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if d.cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(d.cfg.Password)}, nil
	}
	return nil, fmt.Errorf("no ssh key or password configured for deployment")
}

func skipArtifact(name string) bool {
	for _, s := range skippedArtifacts {
		if name == s {
			return true
		}
	}
	return false
}
