package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents and their status",
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(_ *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tSTATUS")
	for _, agent := range a.agents.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", agent.ID, agent.Role, agent.Status)
	}
	return w.Flush()
}
