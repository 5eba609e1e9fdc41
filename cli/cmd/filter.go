package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxfilter/internal/compiler"
	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
	"github.com/fluxbase-eu/fluxfilter/internal/validation"
)

var (
	filterInputs []string
	filterQuery  string
	schemaFile   string
	resourceName string
	schemasDir   string

	parseCanonical bool

	compileLogic       string
	compileQuote       bool
	compilePlaceholder string
	compileVerify      bool
	compileStartIndex  int
	compileNoValidate  bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a filter and print its clauses",
	Long: `Parse filter input in colon, JSON or array form and print the resulting clauses.

Examples:
  fluxfilter parse --filter 'status:eq:active'
  fluxfilter parse --filter 'age:gte:18' --filter 'status:in:active,pending'
  fluxfilter parse --filter '{"name":{"contains":"bob"}}' -o json
  fluxfilter parse --query 'filter=age:gt:1&sort=-createdAt&limit=10' --canonical
  echo '{"age":{"lt":30}}' | fluxfilter parse --filter -`,
	RunE: runParse,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a filter against a schema",
	Long: `Validate a filter against a filter schema and report every invalid clause.
Exits non-zero when any clause is invalid.

Examples:
  fluxfilter validate --schema schemas/users.yaml --filter 'status:eq:archived'
  fluxfilter validate --resource users --filter '{"age":{"gt":"old"}}' -o json`,
	RunE: runValidate,
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a filter into a SQL condition",
	Long: `Validate a filter and compile it into a parameterized SQL condition.

Examples:
  fluxfilter compile --schema schemas/users.yaml --filter 'age:gte:18'
  fluxfilter compile --resource users --filter 'status:in:active,pending' --logic or
  fluxfilter compile --resource users --filter 'name:eq:bob' --placeholder question --quote
  fluxfilter compile --resource users --filter 'age:gt:1' --start-index 3 --verify`,
	RunE: runCompile,
}

func init() {
	for _, c := range []*cobra.Command{parseCmd, validateCmd, compileCmd} {
		c.Flags().StringArrayVarP(&filterInputs, "filter", "f", nil,
			"filter input; repeat for a legacy array, '-' reads stdin")
		c.Flags().StringVar(&filterQuery, "query", "",
			"URL query string carrying filter, sort, limit, offset and fields")
	}
	for _, c := range []*cobra.Command{validateCmd, compileCmd} {
		addSchemaFlags(c)
	}

	parseCmd.Flags().BoolVar(&parseCanonical, "canonical", false,
		"print the canonical query string instead of the clauses")

	compileCmd.Flags().StringVar(&compileLogic, "logic", "and", "clause joiner: and, or")
	compileCmd.Flags().BoolVar(&compileQuote, "quote", false, "quote column identifiers")
	compileCmd.Flags().StringVar(&compilePlaceholder, "placeholder", "dollar",
		"placeholder style: dollar, question, named, at")
	compileCmd.Flags().BoolVar(&compileVerify, "verify", false,
		"parse the output and reject anything but simple predicates")
	compileCmd.Flags().IntVar(&compileStartIndex, "start-index", 1, "number of the first placeholder")
	compileCmd.Flags().BoolVar(&compileNoValidate, "no-validate", false,
		"skip validation and coerce values on a best-effort basis")
}

func addSchemaFlags(c *cobra.Command) {
	c.Flags().StringVar(&schemaFile, "schema", "", "filter schema file (.json, .yaml)")
	c.Flags().StringVar(&resourceName, "resource", "", "resource name to look up in --schemas-dir")
	c.Flags().StringVar(&schemasDir, "schemas-dir", "./schemas", "directory of filter schema files")
}

// readFilterInput returns the raw filter input in the shape ParseFilter
// accepts: one string, a legacy array, or a decoded JSON document.
func readFilterInput(stdin io.Reader) (any, error) {
	switch len(filterInputs) {
	case 0:
		return nil, nil
	case 1:
		if filterInputs[0] != "-" {
			return filterInputs[0], nil
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text := strings.TrimSpace(string(data))
		// Objects stay JSON text so their clauses keep the written order.
		var doc any
		if err := json.Unmarshal([]byte(text), &doc); err == nil {
			if _, ok := doc.(map[string]any); !ok {
				return doc, nil
			}
		}
		return text, nil
	default:
		return filterInputs, nil
	}
}

// parseInput parses --query and --filter. A --filter replaces any filter
// carried in --query.
func parseInput(cmd *cobra.Command) (*query.FilterQuery, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(filterQuery, "?"))
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}

	if len(filterInputs) > 0 {
		values.Del("filter")
	}
	q, err := query.ParseQueryParams(values, query.ParseOptions{})
	if err != nil {
		return nil, err
	}

	if len(filterInputs) > 0 {
		raw, err := readFilterInput(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		if q.Filters, err = query.ParseFilterParams(map[string]any{"filter": raw}); err != nil {
			return nil, err
		}
	}

	log.Debug().Int("filters", len(q.Filters)).Msg("Parsed filter input")
	return q, nil
}

func loadSchema() (*schema.FilterSchema, error) {
	if schemaFile != "" {
		return schema.LoadFile(schemaFile)
	}
	if resourceName == "" {
		return nil, fmt.Errorf("either --schema or --resource is required")
	}

	registry := schema.NewRegistry()
	if _, err := registry.LoadDir(schemasDir); err != nil {
		return nil, err
	}
	s, ok := registry.Get(resourceName)
	if !ok {
		return nil, fmt.Errorf("no filter schema for resource %q in %s", resourceName, filepath.Clean(schemasDir))
	}
	return s, nil
}

func invalidFilterError(result validation.Result) error {
	return fmt.Errorf("filter failed validation: %d invalid clause(s)", len(result.Errors))
}

func runParse(cmd *cobra.Command, args []string) error {
	q, err := parseInput(cmd)
	if err != nil {
		return err
	}

	f := getFormatter(cmd)
	if parseCanonical {
		qs, err := query.BuildQueryString(*q)
		if err != nil {
			return err
		}
		f.PrintSuccess(qs)
		return nil
	}
	return f.PrintFilters(q.Filters)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}
	q, err := parseInput(cmd)
	if err != nil {
		return err
	}

	result := validation.ValidateFilters(q.Filters, s)
	if err := getFormatter(cmd).PrintValidation(result); err != nil {
		return err
	}
	if !result.Valid {
		cmd.SilenceErrors = true
		return invalidFilterError(result)
	}
	return nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	logic, err := compiler.ParseLogic(compileLogic)
	if err != nil {
		return err
	}
	style, err := compiler.ParsePlaceholderStyle(compilePlaceholder)
	if err != nil {
		return err
	}
	opts := compiler.Options{
		Logic:            logic,
		QuoteIdentifiers: compileQuote,
		StartIndex:       compileStartIndex,
		Placeholder:      style,
		Verify:           compileVerify,
	}

	s, err := loadSchema()
	if err != nil {
		return err
	}
	q, err := parseInput(cmd)
	if err != nil {
		return err
	}

	f := getFormatter(cmd)

	var compiled compiler.CompiledFilter
	if compileNoValidate {
		compiled, err = compiler.Compile(q.Filters, s, opts)
	} else {
		validated, result := compiler.Validate(q.Filters, s)
		if !result.Valid {
			if err := f.PrintValidation(result); err != nil {
				return err
			}
			cmd.SilenceErrors = true
			return invalidFilterError(result)
		}
		compiled, err = compiler.CompileValidated(validated, opts)
	}
	if err != nil {
		return err
	}

	return f.PrintCompiled(compiled)
}
