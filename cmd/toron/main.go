package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alienxp03/toron/internal/config"
	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/export"
	"github.com/alienxp03/toron/internal/orchestrator"
	"github.com/alienxp03/toron/internal/persona"
	"github.com/alienxp03/toron/internal/storage"
	"github.com/alienxp03/toron/internal/topic"
)

var (
	dbPath    string
	cfgPath   string
	debug     bool
	appConfig *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toron",
	Short: "AI debate arena",
	Long: `toron runs debates against sandboxed AI agents.

Argue with an agent yourself, or watch two agents argue opposite stances
while the audience votes and comments.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize slog
		opts := &slog.HandlerOptions{Level: slog.LevelInfo}
		if debug {
			opts.Level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))

		// Load config
		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			appConfig.Database.Path = dbPath
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.toron/toron.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.toron/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(configCmd)
}

func getStorage() (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(appConfig.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(appConfig.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// newOrchestrator wires storage and the configured sandbox provider.
func newOrchestrator(store storage.Storage) (*orchestrator.Orchestrator, error) {
	provider, err := appConfig.CreateProvider()
	if err != nil {
		return nil, err
	}

	cfg := orchestrator.DefaultConfig()
	cfg.MaxTurns = appConfig.Debate.MaxTurns
	cfg.SettleDelay = appConfig.Sandbox.SettleDelay
	cfg.ChainReadDelay = appConfig.Sandbox.ChainReadDelay

	return orchestrator.New(store, provider, cfg), nil
}

// withOrchestrator opens the store for the duration of fn.
func withOrchestrator(fn func(ctx context.Context, orch *orchestrator.Orchestrator) error) error {
	store, err := getStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	orch, err := newOrchestrator(store)
	if err != nil {
		return err
	}
	return fn(context.Background(), orch)
}

// ============================================================================
// LIST COMMAND
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, orch *orchestrator.Orchestrator) error {
			debates, err := orch.ListAdmin(ctx)
			if err != nil {
				return err
			}

			if len(debates) == 0 {
				fmt.Println("No debates found. Start the server with: toron serve")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tMODE\tSTATUS\tTURNS\tVOTES\tCOMMENTS\tCREATED")
			fmt.Fprintln(w, "──\t─────\t────\t──────\t─────\t─────\t────────\t───────")

			for _, d := range debates {
				shortTopic := d.DebateTopic
				if shortTopic == "" {
					shortTopic = "-"
				}
				if len(shortTopic) > 35 {
					shortTopic = shortTopic[:32] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
					core.ShortID(d.ID),
					shortTopic,
					d.DebateMode,
					d.Status,
					d.TurnCount,
					d.MaxTurns,
					d.VoteCount,
					d.CommentCount,
					d.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			return w.Flush()
		})
	},
}

// ============================================================================
// SHOW COMMAND
// ============================================================================

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show debate details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, orch *orchestrator.Orchestrator) error {
			id, err := findConversationByPrefix(ctx, orch, args[0])
			if err != nil {
				return err
			}

			view, err := orch.GetConversation(ctx, id)
			if err != nil {
				return err
			}

			doc := export.NewDocument(view)
			fmt.Printf("\n💬 Debate: %s\n", doc.Title())
			fmt.Printf("   ID: %s\n", view.ID)
			fmt.Printf("   Mode: %s\n", view.DebateMode)
			fmt.Printf("   Status: %s\n", view.Status)
			fmt.Printf("   Turns: %d/%d\n", view.TurnCount, view.MaxTurns)
			if view.UserSide != "" || view.AgentSide != "" {
				fmt.Printf("   Stances: %s vs %s\n", view.SideLabel(core.SideA), view.SideLabel(core.SideB))
			}
			fmt.Printf("   Votes: %d / %d\n", view.Votes.User, view.Votes.Agent)
			if view.ErrorMessage != "" {
				fmt.Printf("   Error: %s\n", view.ErrorMessage)
			}
			fmt.Printf("   Created: %s\n", view.CreatedAt.Format(time.RFC3339))
			fmt.Println()

			if len(doc.Speeches) > 0 {
				fmt.Println(strings.Repeat("─", 60))
				for _, s := range doc.Speeches {
					fmt.Printf("\n📢 Turn %d - %s\n", s.Number, s.Speaker)
					fmt.Println(strings.Repeat("─", 40))
					fmt.Println(s.Content)
				}
			}

			if len(view.Evidence) > 0 {
				fmt.Printf("\n🔎 Evidence (%d)\n", len(view.Evidence))
				for _, e := range view.Evidence {
					fmt.Printf("   [%s] %s\n", e.Type, e.Title)
				}
			}

			if view.UserVerdict != "" {
				fmt.Printf("\n⚖️  Verdict: %s\n", view.UserVerdict)
			}
			return nil
		})
	},
}

// ============================================================================
// DELETE COMMAND
// ============================================================================

var deleteCmd = &cobra.Command{
	Use:   "delete [id...]",
	Short: "Delete debates, killing running sandboxes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, orch *orchestrator.Orchestrator) error {
			ids := make([]string, 0, len(args))
			for _, prefix := range args {
				id, err := findConversationByPrefix(ctx, orch, prefix)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			n, err := orch.DeleteConversations(ctx, ids)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted %d debate(s)\n", n)
			return nil
		})
	},
}

// ============================================================================
// EXPORT COMMAND
// ============================================================================

var exportCmd = &cobra.Command{
	Use:   "export [id] [format]",
	Short: "Export debate to file",
	Long: `Export a debate to markdown, PDF, or JSON.

Examples:
  toron export abc123 markdown
  toron export abc123 pdf
  toron export abc123 json -o debate.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(func(ctx context.Context, orch *orchestrator.Orchestrator) error {
			id, err := findConversationByPrefix(ctx, orch, args[0])
			if err != nil {
				return err
			}

			view, err := orch.GetConversation(ctx, id)
			if err != nil {
				return err
			}

			exporter, err := export.GetExporter(export.Format(strings.ToLower(args[1])))
			if err != nil {
				return err
			}

			outputPath, _ := cmd.Flags().GetString("output")
			if outputPath == "" {
				outputPath = export.GenerateFilename(view.Conversation, exporter.FileExtension())
			}

			file, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			defer file.Close()

			if err := exporter.Export(export.NewDocument(view), file); err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}

			fmt.Printf("Exported to: %s\n", outputPath)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file path")
}

// ============================================================================
// CATALOG COMMANDS
// ============================================================================

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the built-in debate topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSIDE A\tSIDE B")
		for _, t := range topic.List() {
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s %s\n",
				t.ID, t.Title, t.SideA.Emoji, t.SideA.Label, t.SideB.Emoji, t.SideB.Label)
		}
		return w.Flush()
	},
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the AI vs AI debaters",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range persona.DefaultPersonas() {
			fmt.Printf("%s %s (%s, %s)\n   %s\n", p.Emoji, p.Name, p.Side, p.Role, p.Description)
		}
		return nil
	},
}

// ============================================================================
// CONFIG COMMAND
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Config file: %s\n\n", config.DefaultConfigPath())

		fmt.Println("Current settings:")
		fmt.Printf("  Port: %d\n", appConfig.Server.Port)
		fmt.Printf("  Base URL: %s\n", appConfig.Server.BaseURL)
		fmt.Printf("  Database: %s\n", appConfig.Database.Path)
		fmt.Printf("  Sandbox provider: %s (timeout: %s)\n", appConfig.Sandbox.Provider, appConfig.Sandbox.Timeout)
		fmt.Printf("  Settle delay: %s, chain read delay: %s\n", appConfig.Sandbox.SettleDelay, appConfig.Sandbox.ChainReadDelay)
		fmt.Printf("  Max turns: %d\n", appConfig.Debate.MaxTurns)
		fmt.Printf("  Anthropic key: %s\n", configured(appConfig.Agent.AnthropicAPIKey))
		if appConfig.Sandbox.Provider == "remote" {
			fmt.Printf("  Sandbox API: %s (key: %s)\n", appConfig.Sandbox.Remote.APIURL, configured(appConfig.Sandbox.Remote.APIKey))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if cfgPath != "" {
			path = cfgPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(config.GenerateExample()), 0600); err != nil {
			return err
		}

		fmt.Printf("Created config at: %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// ============================================================================
// HELPERS
// ============================================================================

func findConversationByPrefix(ctx context.Context, orch *orchestrator.Orchestrator, prefix string) (string, error) {
	debates, err := orch.ListAdmin(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range debates {
		if strings.HasPrefix(d.ID, prefix) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("debate not found: %s", prefix)
}

func configured(secret string) string {
	if secret == "" {
		return "not set"
	}
	return "set"
}
