package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/shield"
)

// Fixture is a recorded set of source results for one transaction.
type Fixture struct {
	Safe             string                     `json:"safe"`
	Recipients       analysis.RecipientResults  `json:"recipients"`
	AddressBook      map[string]analysis.Result `json:"addressBook"`
	Activity         map[string]analysis.Result `json:"activity"`
	Contract         analysis.ContractResults   `json:"contract"`
	Threat           analysis.ThreatResults     `json:"threat"`
	SimulationFailed bool                       `json:"simulationFailed"`
}

// Evaluation is what the engine derives from a fixture.
type Evaluation struct {
	Safe       string                    `json:"safe,omitempty"`
	Recipients analysis.RecipientResults `json:"recipients"`
	Visible    shield.Visible            `json:"visible"`
	Overall    *shield.Status            `json:"overall"`
}

// Evaluate merges the fixture sources and derives the visible findings and
// the overall verdict.
func Evaluate(f Fixture, d *shield.Descriptions) Evaluation {
	merged := shield.MergeRecipientResults(f.Recipients, f.AddressBook, f.Activity)

	ev := Evaluation{
		Safe:       f.Safe,
		Recipients: merged,
		Visible: shield.Visible{
			Recipient: shield.VisibleResults(merged, d),
			Contract:  shield.VisibleResults(f.Contract, d),
			Threat:    shield.VisibleThreatResults(f.Threat),
		},
	}
	if f.Safe != "" && analysis.IsAddress(f.Safe) {
		ev.Safe = analysis.Checksum(f.Safe)
	}

	if st, ok := shield.OverallStatus(shield.OverallInput{
		Recipient:        merged,
		Contract:         f.Contract,
		Threat:           f.Threat,
		SimulationFailed: f.SimulationFailed,
	}); ok {
		ev.Overall = &st
	}
	return ev
}

func createAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <file.json>",
		Short: "Evaluate recorded source results offline",
		Long: `Run the merge, consolidation and overall-verdict steps over a JSON
fixture of recorded source results. Use "-" to read from stdin.

EXAMPLES:
  # Human readable report
  shieldctl analyze tx.json

  # Full evaluation as JSON
  shieldctl analyze tx.json --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := readFixture(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			d, err := shield.LoadDescriptions(opts.descriptionsFile())
			if err != nil {
				return err
			}

			ev := Evaluate(fixture, d)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ev)
			}
			printEvaluation(cmd.OutOrStdout(), ev)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func readFixture(stdin io.Reader, path string) (Fixture, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- operator-supplied fixture path
	}
	if err != nil {
		return Fixture{}, fmt.Errorf("reading fixture: %w", err)
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parsing fixture: %w", err)
	}
	return f, nil
}

func printEvaluation(out io.Writer, ev Evaluation) {
	if ev.Safe != "" {
		fmt.Fprintf(out, "Safe:    %s\n", ev.Safe)
	}
	if ev.Overall != nil {
		fmt.Fprintf(out, "Overall: %s (%s)\n", ev.Overall.Title, ev.Overall.Severity)
	} else {
		fmt.Fprintln(out, "Overall: nothing to judge")
	}

	sections := []struct {
		name    string
		results []analysis.Result
	}{
		{"RECIPIENT", ev.Visible.Recipient},
		{"CONTRACT", ev.Visible.Contract},
		{"THREAT", ev.Visible.Threat},
	}
	for _, s := range sections {
		if len(s.results) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s\n", s.name)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tTYPE\tTITLE\tDESCRIPTION")
		for _, r := range s.results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Severity, r.Type, r.Title, r.Description)
		}
		_ = w.Flush()
		for _, r := range s.results {
			if len(r.Addresses) > 0 {
				fmt.Fprintf(out, "  %s: %s\n", r.Type, strings.Join(r.Addresses, ", "))
			}
		}
	}
}
