package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxfilter/cli/output"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Aliases: []string{"schemas"},
	Short:   "Inspect filter schemas",
	Long:    `Inspect and check filter schema documents.`,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the fields of a filter schema",
	Long: `Show the fields, columns, types and allowed operators of a filter schema.

Examples:
  fluxfilter schema show --schema schemas/users.yaml
  fluxfilter schema show --resource users -o json`,
	RunE: runSchemaShow,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the filter schemas in a directory",
	Long: `Load every schema document in --schemas-dir and list the resources.
Fails on the first document that does not load, so it doubles as a check.

Examples:
  fluxfilter schema list
  fluxfilter schema list --schemas-dir /srv/schemas -o yaml`,
	RunE: runSchemaList,
}

func init() {
	addSchemaFlags(schemaShowCmd)
	schemaListCmd.Flags().StringVar(&schemasDir, "schemas-dir", "./schemas", "directory of filter schema files")

	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaListCmd)
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}
	return getFormatter(cmd).PrintSchema(s)
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	registry := schema.NewRegistry()
	if _, err := registry.LoadDir(schemasDir); err != nil {
		return err
	}

	f := getFormatter(cmd)
	schemas := registry.List()
	if len(schemas) == 0 {
		f.PrintWarning(fmt.Sprintf("no filter schemas found in %s", schemasDir))
		return nil
	}

	data := output.TableData{Headers: []string{"RESOURCE", "VERSION", "FIELDS"}}
	for _, s := range schemas {
		data.Rows = append(data.Rows, []string{s.Resource, s.Version, strconv.Itoa(len(s.Fields))})
	}
	return f.PrintTable(data)
}
