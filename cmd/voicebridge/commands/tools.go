package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicebridge/pkg/cli"
)

var flagToolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools advertised to the model",
	Long: `List the tools the relay would advertise with the active config:
the built-ins plus the knowledge base and delegating agent when configured.

Use -v to include each tool's argument schema.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&flagToolsJSON, "json", false, "print declarations as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg, nil)
	if err != nil {
		return err
	}
	decls := reg.Declarations()

	if flagToolsJSON {
		out := make([]map[string]any, 0, len(decls))
		for _, d := range decls {
			out = append(out, map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"schema":      d.Schema,
			})
		}
		return cli.Output(out, cli.OutputOptions{Format: cli.FormatJSON})
	}

	st := cli.NewStyles(cli.DefaultTheme)
	for _, d := range decls {
		fmt.Printf("%s  %s\n", st.Label.Render(d.Name), d.Description)
		if IsVerbose() && d.Schema != nil {
			b, err := json.MarshalIndent(d.Schema, "  ", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("  %s\n", b)
		}
	}
	return nil
}
