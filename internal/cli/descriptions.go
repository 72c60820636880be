package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/safeshield/internal/shield"
)

func createDescriptionsCmd(opts *globalOptions) *cobra.Command {
	var yamlOutput bool

	cmd := &cobra.Command{
		Use:   "descriptions",
		Short: "Print the active wording table",
		Long: `Print the wording used for consolidated findings. With --yaml the output
is a valid descriptions file that can be edited and passed back with
--descriptions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := shield.LoadDescriptions(opts.descriptionsFile())
			if err != nil {
				return err
			}

			if yamlOutput {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer func() { _ = enc.Close() }()
				return enc.Encode(map[string]any{"descriptions": d.Phrases()})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tSINGULAR\tPLURAL\tALL")
			for _, p := range d.Phrases() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Code, p.Singular, p.Plural, p.All)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "output as a descriptions YAML file")

	return cmd
}
