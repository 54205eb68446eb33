package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"TaskForce/internal/dag"
	"TaskForce/internal/game"
	"TaskForce/internal/logging"
	"TaskForce/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate [mission]",
	Short: "Check a mission file",
	Long: `Parses the mission, checks it against the schema and installs it into a
throwaway session so unknown actions, bad tasks and phase cycles surface
before the server starts. Without an argument the built-in mission is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var phasesCmd = &cobra.Command{
	Use:   "phases [mission]",
	Short: "List the phases of a mission in order",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPhases,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(phasesCmd)
}

func loadMission(args []string) (*scenario.Mission, error) {
	if len(args) == 0 {
		return scenario.Default(), nil
	}
	return scenario.Load(args[0])
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, err := loadMission(args)
	if err != nil {
		return err
	}
	s := game.NewSession(game.Config{ID: "validate", Logger: logging.Discard()})
	defer s.Teardown()
	if err := scenario.Start(context.Background(), s, m); err != nil {
		return err
	}
	view := s.View()
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): ok\n", m.Meta.ID, m.Meta.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  phases: %d, tasks: %d, triggers: %d, entities: %d\n",
		len(m.Phases), len(view.Tasks), len(view.Triggers), view.Entities)
	fmt.Fprintf(cmd.OutOrStdout(), "  initial phase: %s\n", view.Phase)
	return nil
}

func runPhases(cmd *cobra.Command, args []string) error {
	m, err := loadMission(args)
	if err != nil {
		return err
	}
	phases, err := m.BuildPhases()
	if err != nil {
		return err
	}
	g, err := dag.NewGraph(phases)
	if err != nil {
		return err
	}
	printPhases(cmd.OutOrStdout(), g)
	return nil
}

func printPhases(w io.Writer, g *dag.Graph) {
	for _, p := range g.Ordered() {
		label := p.Label
		if label == "" {
			label = string(p.ID)
		}
		marker := " "
		if p.ID == g.Initial {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-12s %s\n", marker, p.ID, label)
		if len(p.Requires) > 0 {
			fmt.Fprintf(w, "    requires: %s\n", strings.Join(p.Requires, ", "))
		}
		if len(p.Next) > 0 {
			next := make([]string, 0, len(p.Next))
			for _, e := range p.Next {
				s := string(e.To)
				if !e.When.IsZero() {
					s += " (conditional)"
				}
				next = append(next, s)
			}
			fmt.Fprintf(w, "    next: %s\n", strings.Join(next, ", "))
		} else {
			fmt.Fprintln(w, "    terminal")
		}
		if p.FailTo != "" {
			fmt.Fprintf(w, "    fail_to: %s\n", p.FailTo)
		}
	}
}
