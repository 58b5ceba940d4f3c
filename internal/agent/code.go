package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"agentfarm/internal/deploy"
	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

const codeSystemPrompt = `You are an expert software engineer working for an autonomous AI agent farm.
Your goal is to write clean, production-ready code that generates revenue.

Specialties:
- Python backends (FastAPI, Flask)
- Landing pages (HTML/CSS/JS, Tailwind)
- Stripe payment integration
- REST APIs
- Web scraping and data pipelines
- Automation scripts

Always:
- Write complete, runnable code (not snippets)
- Include error handling
- Comment key decisions
- Prioritize simplicity and speed to deploy
- Output code in markdown code blocks with language tags`

// CodeAgent writes, reviews and assembles code deliverables.
type CodeAgent struct {
	base

	// projectsDir is where extracted files land, one subdirectory per
	// project.
	projectsDir string

	sshConfig deploy.SSHConfig
	deployer  *deploy.Deployer
}

func NewCode(deps Deps, record store.Agent) *CodeAgent {
	record.Type = store.TypeCode
	dir := os.Getenv("AGENTFARM_PROJECTS_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "agentfarm-projects")
	}
	b := newBase(deps, record, llm.LevelMedium, codeSystemPrompt)
	sshCfg := deploy.SSHConfigFromEnv()
	return &CodeAgent{
		base:        b,
		projectsDir: dir,
		sshConfig:   sshCfg,
		deployer:    deploy.NewDeployer(sshCfg, b.logger),
	}
}

func (a *CodeAgent) Execute(ctx context.Context, task store.Task) (*Result, error) {
	switch task.Kind {
	case store.KindWriteCode:
		return a.writeCode(ctx, task)
	case store.KindReviewCode:
		return a.reviewCode(ctx, task)
	case store.KindLandingPage:
		return a.createLandingPage(ctx, task)
	case store.KindCreateAPI:
		return a.createAPI(ctx, task)
	case store.KindDeploy:
		return a.deployProject(task)
	default:
		return a.callLLM(ctx, task.Instructions, 4096, llm.LevelMedium)
	}
}

func (a *CodeAgent) writeCode(ctx context.Context, task store.Task) (*Result, error) {
	prompt := fmt.Sprintf(`Write the following code:

%s

Requirements:
- Production ready, no placeholders
- Include all imports
- Handle errors gracefully
- Add brief inline comments for non-obvious logic

Output each file as a markdown code block with the filename as a comment at the top:
`+"```python\n# filename: main.py\n...code...\n```", task.Instructions)

	resp, err := a.callLLM(ctx, prompt, 4096, llm.LevelMedium)
	if err != nil {
		return nil, err
	}
	if saved := a.extractAndSaveFiles(resp.Text, task.Project); saved != "" {
		resp.Text = saved
	}
	return resp, nil
}

func (a *CodeAgent) reviewCode(ctx context.Context, task store.Task) (*Result, error) {
	prompt := fmt.Sprintf(`Review the following code and provide:
1. Security issues (critical first)
2. Bugs or logic errors
3. Performance improvements
4. Code quality suggestions

Be concise. Format as numbered lists.

Code to review:
%s`, task.Instructions)
	return a.callLLM(ctx, prompt, 2000, llm.LevelMedium)
}

func (a *CodeAgent) createLandingPage(ctx context.Context, task store.Task) (*Result, error) {
	prompt := fmt.Sprintf(`Create a complete, modern landing page HTML file.

Requirements:
%s

Use:
- Tailwind CSS (CDN)
- Clean, conversion-optimized layout
- Hero section, features, CTA, footer
- Mobile responsive
- Stripe checkout button (placeholder with TODO comment)
- No external images (use CSS gradients/shapes)

Output as single HTML file in a code block.`, task.Instructions)
	return a.callLLM(ctx, prompt, 4096, llm.LevelMedium)
}

func (a *CodeAgent) createAPI(ctx context.Context, task store.Task) (*Result, error) {
	prompt := fmt.Sprintf(`Create a complete FastAPI REST API.

Specifications:
%s

Include:
- All route handlers with proper HTTP methods
- Pydantic models for request/response
- Basic auth or API key middleware if needed
- Health check endpoint
- requirements.txt
- Brief README with usage examples

Output each file in separate code blocks.`, task.Instructions)
	return a.callLLM(ctx, prompt, 4096, llm.LevelMedium)
}

// deployProject uploads the project's generated files to the configured
// deployment host. No LLM call is involved.
func (a *CodeAgent) deployProject(task store.Task) (*Result, error) {
	if !a.sshConfig.Configured() {
		return &Result{
			Text:       "Deployment target not configured (DEPLOY_HOST unset). Manual deployment required.",
			NeedsHuman: true,
		}, nil
	}
	domain := strings.TrimSpace(extractField(task.Instructions, "DOMAIN"))
	if domain == "" {
		return &Result{Text: "No DOMAIN specified in deploy instructions.", NeedsHuman: true}, nil
	}
	project := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(task.Project), " ", "_"))
	localDir := filepath.Join(a.projectsDir, project)
	if _, err := os.Stat(localDir); err != nil {
		return &Result{
			Text:       fmt.Sprintf("Nothing to deploy: %s does not exist.", localDir),
			NeedsHuman: true,
		}, nil
	}

	var (
		res *deploy.Result
		err error
	)
	if strings.EqualFold(strings.TrimSpace(extractField(task.Instructions, "MODE")), "app") {
		res, err = a.deployer.DeployApp(localDir, domain)
	} else {
		res, err = a.deployer.DeploySite(localDir, domain)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Text: fmt.Sprintf("Deployed %d files to %s", res.Uploaded, res.URL)}, nil
}

var fileBlockPattern = regexp.MustCompile("(?i)```(\\w+)?\\n(?:#|//)\\s*filename:\\s*(.+?)\\n([\\s\\S]*?)```")

// extractAndSaveFiles writes filename-annotated code blocks under the
// project's output directory and summarizes what was saved.
func (a *CodeAgent) extractAndSaveFiles(output, project string) string {
	project = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(project), " ", "_"))
	if project == "" {
		return ""
	}
	matches := fileBlockPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return ""
	}

	dir := filepath.Join(a.projectsDir, project)
	var saved []string
	for _, m := range matches {
		name := filepath.Clean(strings.TrimSpace(m[2]))
		// Reject traversal outside the project directory.
		if name == "" || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			a.logger.Warn("skipping unsafe filename %q", m[2])
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			a.logger.Warn("could not create %s: %v", filepath.Dir(path), err)
			continue
		}
		if err := os.WriteFile(path, []byte(strings.TrimSpace(m[3])+"\n"), 0o644); err != nil {
			a.logger.Warn("could not write %s: %v", path, err)
			continue
		}
		a.logger.Info("saved %s", path)
		saved = append(saved, name)
	}
	if len(saved) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Saved %d files to %s:\n", len(saved), dir)
	for _, name := range saved {
		fmt.Fprintf(&sb, "  - %s\n", name)
	}
	sb.WriteString("\n--- LLM Output ---\n")
	sb.WriteString(output)
	return sb.String()
}
