// Package output provides output formatting for the fluxfilter CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/fluxfilter/internal/compiler"
	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
	"github.com/fluxbase-eu/fluxfilter/internal/validation"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Formatter formats output in various formats
type Formatter struct {
	Format    Format
	NoHeaders bool
	Quiet     bool
	Writer    io.Writer
}

// NewFormatter creates a new formatter writing to stdout
func NewFormatter(format Format, noHeaders, quiet bool) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Quiet:     quiet,
		Writer:    os.Stdout,
	}
}

// Print outputs data in the configured format. Table mode falls back to JSON.
func (f *Formatter) Print(data interface{}) error {
	if f.Quiet {
		return nil
	}

	switch f.Format {
	case FormatYAML:
		return f.printYAML(data)
	default:
		return f.printJSON(data)
	}
}

func (f *Formatter) printJSON(data interface{}) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	defer func() { _ = encoder.Close() }()
	return encoder.Encode(data)
}

// TableData represents tabular data for table output
type TableData struct {
	Headers []string
	Rows    [][]string
}

// PrintTable prints rows as a table, or as a list of objects keyed by
// header in json/yaml mode
func (f *Formatter) PrintTable(data TableData) error {
	if f.Quiet {
		return nil
	}

	if f.Format != FormatTable {
		rows := make([]map[string]string, len(data.Rows))
		for i, row := range data.Rows {
			rowMap := make(map[string]string)
			for j, cell := range row {
				if j < len(data.Headers) {
					rowMap[strings.ToLower(data.Headers[j])] = cell
				}
			}
			rows[i] = rowMap
		}
		return f.Print(rows)
	}

	table := tablewriter.NewWriter(f.Writer)

	if !f.NoHeaders && len(data.Headers) > 0 {
		table.SetHeader(data.Headers)
	}

	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows)
	table.Render()
	return nil
}

// PrintFilters prints parsed filter clauses
func (f *Formatter) PrintFilters(filters []query.FilterOption) error {
	if f.Format != FormatTable {
		return f.Print(filters)
	}

	data := TableData{Headers: []string{"FIELD", "OPERATOR", "VALUE", "KIND"}}
	for _, filter := range filters {
		data.Rows = append(data.Rows, []string{
			filter.Field,
			string(filter.Op),
			filter.Value.String(),
			filter.Value.Kind().String(),
		})
	}
	return f.PrintTable(data)
}

// PrintValidation prints a validation result. In table mode a valid result
// prints a single line and an invalid one lists the errors.
func (f *Formatter) PrintValidation(result validation.Result) error {
	if f.Format != FormatTable {
		return f.Print(result)
	}

	if result.Valid {
		f.PrintSuccess("valid")
		return nil
	}

	data := TableData{Headers: []string{"CODE", "FIELD", "OPERATOR", "MESSAGE"}}
	for _, e := range result.Errors {
		data.Rows = append(data.Rows, []string{string(e.Code), e.Field, string(e.Operator), e.Message})
	}
	return f.PrintTable(data)
}

// PrintCompiled prints a compiled filter
func (f *Formatter) PrintCompiled(c compiler.CompiledFilter) error {
	if f.Format != FormatTable {
		return f.Print(c)
	}
	if f.Quiet {
		return nil
	}

	_, _ = fmt.Fprintln(f.Writer, c.Where())
	data := TableData{Headers: []string{"PARAM", "VALUE"}}
	for i, p := range c.Params {
		data.Rows = append(data.Rows, []string{fmt.Sprintf("$%d", i+1), formatParam(p)})
	}
	if len(data.Rows) == 0 {
		return nil
	}
	return f.PrintTable(data)
}

// PrintSchema prints the fields of a filter schema
func (f *Formatter) PrintSchema(s *schema.FilterSchema) error {
	if f.Format != FormatTable {
		return f.Print(s)
	}

	data := TableData{Headers: []string{"FIELD", "COLUMN", "TYPE", "NULLABLE", "OPERATORS", "VALUES"}}
	for _, name := range s.FieldNames() {
		def := s.Fields[name]
		ops := make([]string, len(def.Operators))
		for i, op := range def.Operators {
			ops[i] = string(op)
		}
		data.Rows = append(data.Rows, []string{
			name,
			def.Column,
			string(def.Type),
			fmt.Sprintf("%t", def.Nullable),
			strings.Join(ops, ","),
			strings.Join(def.EnumValues, ","),
		})
	}
	return f.PrintTable(data)
}

func formatParam(p any) string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(b)
}

// PrintSuccess prints a success message
func (f *Formatter) PrintSuccess(message string) {
	if f.Quiet {
		return
	}
	_, _ = fmt.Fprintln(f.Writer, message)
}

// PrintWarning prints a warning message
func (f *Formatter) PrintWarning(message string) {
	if f.Quiet {
		return
	}
	fmt.Fprintln(os.Stderr, "Warning:", message)
}
