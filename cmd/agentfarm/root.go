package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agentfarm/internal/deploy"
	"agentfarm/internal/llm"
	"agentfarm/internal/logging"
	"agentfarm/internal/machine"
	"agentfarm/internal/orchestrator"
	"agentfarm/internal/store"
	"agentfarm/internal/telemetry"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// NewRootCommand builds the agentfarm CLI.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentfarm",
		Short: "Autonomous revenue-seeking agent farm orchestrator",
		Long: fmt.Sprintf(`%s

agentfarm runs a fleet of LLM-backed agents against a shared task board.
Projects move idea -> research -> active -> scaling or archived, driven by
an orchestrator loop that routes work to local models first and cloud
providers only when needed.

%s
  agentfarm run                  # Run the orchestrator loop
  agentfarm once                 # Single loop iteration, then exit
  agentfarm status               # Provider and store health`,
			bold("Agent Farm"), bold("EXAMPLES:")),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("store-url", "", "Record-store API base URL (default: local sqlite)")
	rootCmd.PersistentFlags().String("store-token", "", "Record-store API token")
	rootCmd.PersistentFlags().String("sqlite", "agentfarm.db", "SQLite database path for local mode")
	rootCmd.PersistentFlags().String("machine", "", "Machine name reported in heartbeats (default: hostname)")
	rootCmd.PersistentFlags().String("roster", "", "Path to agents.yaml roster file")
	rootCmd.PersistentFlags().String("metrics-listen", "", "Prometheus metrics listen address (e.g. :9090)")
	rootCmd.PersistentFlags().String("ollama-url", "", "Ollama base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.SetEnvPrefix("AGENTFARM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, flag := range []string{"store-url", "store-token", "sqlite", "machine", "roster", "metrics-listen", "ollama-url", "log-level"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newOnceCommand())
	rootCmd.AddCommand(newStatusCommand())
	return rootCmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			o, cleanup, err := buildOrchestrator(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := o.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			fmt.Println(yellow("orchestrator stopped"))
			return nil
		},
	}
}

func newOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single loop iteration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, cleanup, err := buildOrchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer cleanup()
			o.RunOnce(cmd.Context())
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider and store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			fmt.Println(bold("Agent Farm status"))
			fmt.Printf("machine: %s\n\n", cyan(machineName()))

			client := newLLMClient(logging.Nop())
			fmt.Println(bold("LLM providers"))
			for _, p := range client.Status(ctx) {
				marker := red("down")
				if p.Available {
					marker = green("up")
				}
				fmt.Printf("  %-10s %s", p.Name, marker)
				if len(p.Models) > 0 {
					fmt.Printf("  %s", strings.Join(p.Models, ", "))
				}
				fmt.Println()
			}

			s, cleanup, err := openStore()
			if err != nil {
				fmt.Printf("\n%s %s: %v\n", bold("store:"), red("unreachable"), err)
				return nil
			}
			defer cleanup()

			fmt.Printf("\n%s %s\n", bold("store:"), green("ok"))
			printBoard(ctx, s)
			return nil
		},
	}
}

func printBoard(ctx context.Context, s store.Store) {
	for _, status := range []store.ProjectStatus{
		store.ProjectIdea, store.ProjectResearch, store.ProjectActive,
		store.ProjectScaling, store.ProjectArchived,
	} {
		projects, err := s.Projects(ctx, status)
		if err != nil {
			fmt.Printf("  projects: %v\n", err)
			return
		}
		if len(projects) == 0 {
			continue
		}
		fmt.Printf("  %-10s %d\n", status, len(projects))
	}
	if needsHuman, err := s.Tasks(ctx, store.TaskFilter{Status: store.TaskNeedsHuman}); err == nil && len(needsHuman) > 0 {
		fmt.Printf("  %s %d task(s) need human attention\n", yellow("!"), len(needsHuman))
	}
}

// buildOrchestrator wires the full dependency graph from flags and env.
func buildOrchestrator(ctx context.Context, withJobs bool) (*orchestrator.Orchestrator, func(), error) {
	logging.SetDefaultLevel(logging.ParseLevel(viper.GetString("log-level")))
	logger := logging.NewComponentLogger("orchestrator")

	s, cleanup, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	client := newLLMClient(logging.NewComponentLogger("llm"))

	if addr := viper.GetString("metrics-listen"); addr != "" {
		go telemetry.StartMetricsServer(ctx, addr, logging.NewComponentLogger("metrics"))
	}

	deps := orchestrator.Dependencies{
		Store:       s,
		LLM:         client,
		LocalModels: client.LocalModels,
		MachineName: machineName(),
		RosterPath:  viper.GetString("roster"),
		Logger:      logger,
	}
	if withJobs {
		if wd, err := os.Getwd(); err == nil {
			deps.Updater = deploy.NewSelfUpdater(wd, s, logging.NewComponentLogger("self-update"))
			deps.Restart = func() { os.Exit(0) }
		}
	}
	return orchestrator.New(deps), cleanup, nil
}

func openStore() (store.Store, func(), error) {
	if url := viper.GetString("store-url"); url != "" {
		s, err := store.NewHTTP(store.HTTPConfig{
			BaseURL: url,
			Token:   viper.GetString("store-token"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
	s, err := store.OpenSQLite(viper.GetString("sqlite"))
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func newLLMClient(logger logging.Logger) *llm.Client {
	return llm.NewClient(llm.ClientConfig{
		OllamaURL:       viper.GetString("ollama-url"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Logger:          logger,
	})
}

func machineName() string {
	if name := viper.GetString("machine"); name != "" {
		return name
	}
	return machine.Collect(context.Background()).Hostname
}
