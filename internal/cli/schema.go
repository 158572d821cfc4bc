package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Output the JSON schema for workflow documents",
	Long:   `Output the JSON schema describing the workflow document format, generated from the AST's Go types.`,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		schemaBytes, err := ast.NewSchema()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s error generating schema: %s\n", errorIcon, err)
			os.Exit(1)
		}

		var pretty json.RawMessage = schemaBytes
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
