package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/browser/prompt"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const (
	defaultStartURL = "https://duckduckgo.com"
	shutdownTimeout = 15 * time.Second
)

// newOpenCmd creates the `open` command, which starts a browser and serves
// prompts typed into the in-page prompt box until interrupted.
func newOpenCmd() *cobra.Command {
	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Opens a browser and follows instructions typed into the page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			startURL, err := cmd.Flags().GetString("url")
			if err != nil {
				return err
			}

			err = runOpen(ctx, cfg, startURL, cmd.OutOrStdout(), observability.GetLogger())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	openCmd.Flags().StringP("url", "u", defaultStartURL, "Page to open before the prompt box is injected.")
	openCmd.Flags().Bool("headless", false, "Run the browser without a window. (Overrides config/env)")
	openCmd.Flags().String("remote-url", "", "Attach to a running browser's DevTools endpoint instead of launching one. (Overrides config/env)")
	openCmd.Flags().String("backend", string(config.BackendCDP), "Browser backend: 'cdp' or 'rod'. (Overrides config/env)")
	openCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. ':9090'. (Overrides config/env)")
	openCmd.Flags().Bool("auto-execute", true, "Run planned jobs right after showing the checklist. (Overrides config/env)")
	openCmd.Flags().String("memory", "", "File the interaction history is loaded from and saved to. (Overrides config/env)")

	return openCmd
}

// openComponents holds the services started for one open session.
type openComponents struct {
	Manager *browser.Manager
	LLM     schemas.LLMClient
	logger  *zap.Logger
}

// Shutdown releases the browser and model clients. It uses its own timeout so
// cleanup still runs after the command context is cancelled.
func (c *openComponents) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if c.Manager != nil {
		if err := c.Manager.Shutdown(ctx); err != nil {
			c.logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			c.logger.Warn("Error closing LLM clients.", zap.Error(err))
		}
	}
}

func runOpen(ctx context.Context, cfg config.Interface, startURL string, out io.Writer, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	if addr := cfg.Metrics().Addr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, logger); err != nil {
				logger.Error("Metrics endpoint stopped.", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	components := &openComponents{logger: logger}
	defer components.Shutdown()

	llm, err := llmclient.NewRouterFromConfig(ctx, cfg.Agent().LLM, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	components.LLM = llm

	components.Manager = browser.NewManager(cfg.Browser(), logger)
	session, err := components.Manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}

	if startURL != "" {
		if err := session.Navigate(ctx, startURL); err != nil {
			return fmt.Errorf("failed to open %s: %w", startURL, err)
		}
	}

	agentCfg := cfg.Agent()
	memory, err := loadMemory(agentCfg.Memory, logger)
	if err != nil {
		return err
	}

	a := agent.New(session, llm, cfg, memory, logger, metrics)
	ui := prompt.New(session, agentCfg.PollInterval, logger)
	driver := agent.NewDriver(a, session, ui, agent.DriverConfig{
		AutoExecute: agentCfg.AutoExecute,
		PersistPath: agentCfg.Memory.PersistPath,
	}, logger, metrics)

	fmt.Fprintln(out, "Browser ready. Type an instruction into the prompt box on the page, or /help. Press Ctrl+C to quit.")
	logger.Info("Serving prompts.",
		zap.String("session_id", session.ID()),
		zap.String("url", startURL),
		zap.Bool("auto_execute", agentCfg.AutoExecute))

	return driver.Run(ctx)
}

// loadMemory restores the persisted history. A missing file starts empty.
func loadMemory(cfg config.MemoryConfig, logger *zap.Logger) (*agent.Memory, error) {
	if cfg.PersistPath == "" {
		return agent.NewMemory(cfg.Capacity), nil
	}
	memory, err := agent.LoadMemory(cfg.PersistPath, cfg.Capacity)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("No saved history yet, starting fresh.", zap.String("path", cfg.PersistPath))
		return agent.NewMemory(cfg.Capacity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore history: %w", err)
	}
	logger.Info("Restored history.", zap.String("path", cfg.PersistPath), zap.Int("entries", memory.Len()))
	return memory, nil
}
