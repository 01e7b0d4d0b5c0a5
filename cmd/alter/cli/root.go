package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alterlabs/alter/internal/agent"
	"github.com/alterlabs/alter/internal/runtime"
	"github.com/alterlabs/alter/internal/server"
	"github.com/alterlabs/alter/internal/ui"
	"github.com/alterlabs/alter/internal/ui/tui"
)

var (
	verbose      bool
	jsonLogs     bool
	providerName string
	modelName    string
	smallModel   string
	dataDir      string
	workdir      string
	addr         string
	withDriver   bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "alter",
	Short: "Self-directed AI agent runtime",
	Long: `Alter is an always-on AI agent. It answers chat requests, runs tools in a
sandboxed workspace, and between requests pursues its own goals to keep its
survival balance above water.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyBootstrap(cmd)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the agent (interactive TUI, or one-shot with a message)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 1 {
			return chatOnce(cmd.Context(), rt, args[0])
		}
		return chatInteractive(cmd.Context(), rt)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if withDriver {
			go func() {
				if err := rt.Driver.Start(ctx); err != nil {
					rt.Observer.Log().Error().Err(err).Msg("consciousness driver stopped")
				}
			}()
		}

		srv := server.New(rt)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(addr)
	},
}

var consciousCmd = &cobra.Command{
	Use:   "conscious",
	Short: "Run the autonomous consciousness driver in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.Driver.Start(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent's local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		balance, _ := s.SurvivalBalance()
		thoughts, _ := s.CountThoughts()
		knowledge, _ := s.CountKnowledge()
		memories, _ := s.CountMemories()

		fmt.Printf("survival balance: %.2f\n", balance)
		fmt.Printf("thoughts:         %d\n", thoughts)
		fmt.Printf("knowledge:        %d\n", knowledge)
		fmt.Printf("memories:         %d\n", memories)

		tasks, err := s.RecentTasks(agent.AutonomousSessionID, 5)
		if err == nil && len(tasks) > 0 {
			fmt.Println("recent autonomous tasks:")
			for _, task := range tasks {
				fmt.Printf("  [%s] %s\n", task.Status, task.Description)
			}
		}
		return nil
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	RootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "openai", "AI provider (openai, gemini, ollama)")
	RootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	RootCmd.PersistentFlags().StringVar(&smallModel, "small-model", "", "Cheaper model for background reflection")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.alter)")
	RootCmd.PersistentFlags().StringVar(&workdir, "workdir", "", "Agent workspace (default <data-dir>/workspace)")

	serveCmd.Flags().StringVar(&addr, "addr", ":8420", "Listen address")
	serveCmd.Flags().BoolVar(&withDriver, "conscious", true, "Also run the consciousness driver")

	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(consciousCmd)
	RootCmd.AddCommand(statusCmd)
}

// chatOnce runs a single turn and prints the transcript to stdout.
func chatOnce(ctx context.Context, rt *runtime.Runtime, message string) error {
	events, err := rt.Chat(ctx, "default", message, nil)
	if err != nil {
		return err
	}
	surface := ui.Console{W: os.Stdout}
	for e := range events {
		surface.Event(e)
	}
	return nil
}

// chatInteractive runs the bubbletea chat session until the user quits.
func chatInteractive(ctx context.Context, rt *runtime.Runtime) error {
	var program *tea.Program
	model := tui.NewModel(func(text string) {
		go func() {
			events, err := rt.Chat(ctx, "default", text, nil)
			if err != nil {
				program.Send(tui.EventMsg(agent.Event{Kind: agent.EventError, Text: err.Error()}))
				return
			}
			for e := range events {
				program.Send(tui.EventMsg(e))
			}
		}()
	})
	program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
