package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/reelforge/reelforge/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show persisted workflow state",
	Long: `Status lists every persisted run, or shows per-phase detail for one
workflow ID.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return showWorkflow(cfg.State.Dir, args[0])
	}
	return listWorkflows(cfg.State.Dir)
}

func listWorkflows(dir string) error {
	ids, err := state.ListWorkflows(dir)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no persisted workflows")
		return nil
	}
	sort.Strings(ids)

	for _, id := range ids {
		ps, err := state.LoadState(dir, id)
		if err != nil {
			fmt.Printf("%-40s  unreadable: %v\n", id, err)
			continue
		}
		s := state.SummaryOf(ps)
		fmt.Printf("%-40s  %d/%d completed, %d failed, %s\n",
			id, s.Completed, s.Total, s.Failed, s.Duration.Round(timeRound))
	}
	return nil
}

func showWorkflow(dir, id string) error {
	ps, err := state.LoadState(dir, id)
	if err != nil {
		return err
	}
	if ps == nil {
		return fmt.Errorf("no persisted state for workflow %s", id)
	}

	names := make([]string, 0, len(ps.Phases))
	for name := range ps.Phases {
		names = append(names, name.String())
	}
	sort.Strings(names)

	fmt.Printf("workflow %s (updated %s)\n", ps.WorkflowID, ps.UpdatedAt.Format("2006-01-02 15:04:05"))
	for _, name := range names {
		phase := ps.Phases[corePhase(name)]
		line := fmt.Sprintf("  %-20s %s", name, phase.Status)
		if phase.Retries > 0 {
			line += fmt.Sprintf(" (retries: %d)", phase.Retries)
		}
		if phase.Error != "" {
			line += "  " + phase.Error
		}
		fmt.Println(line)
	}

	s := state.SummaryOf(ps)
	fmt.Printf("  %d/%d completed, %d failed, total %s\n",
		s.Completed, s.Total, s.Failed, s.Duration.Round(timeRound))
	return nil
}
