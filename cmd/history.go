package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// newHistoryCmd creates the `history` command, which prints the persisted
// interaction history, newest first.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Prints the saved interaction history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			memCfg := cfg.Agent().Memory
			if memCfg.PersistPath == "" {
				return errors.New("no history file configured (agent.memory.persist_path or --memory)")
			}

			last, _ := cmd.Flags().GetInt("last")
			selector, _ := cmd.Flags().GetString("selector")

			memory, err := loadMemory(memCfg, observability.GetLogger())
			if err != nil {
				return err
			}
			entries := memory.LastN(last)
			if selector != "" {
				entries = newestFirst(memory.BySelector(selector), last)
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	historyCmd.Flags().String("memory", "", "History file to read. (Overrides config/env)")
	historyCmd.Flags().IntP("last", "n", 10, "Number of entries to print.")
	historyCmd.Flags().String("selector", "", "Only print entries that acted on this selector.")
	return historyCmd
}

// newestFirst reverses oldest-first entries and keeps at most n.
func newestFirst(entries []agent.MemoryEntry, n int) []agent.MemoryEntry {
	out := make([]agent.MemoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

func printHistory(w io.Writer, entries []agent.MemoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-40s  %s\n", e.Timestamp.Local().Format(time.DateTime), e.Job, e.PageURL)
	}
}
