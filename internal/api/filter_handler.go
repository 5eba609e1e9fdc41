package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/fluxfilter/internal/compiler"
	"github.com/fluxbase-eu/fluxfilter/internal/middleware"
	"github.com/fluxbase-eu/fluxfilter/internal/observability"
	"github.com/fluxbase-eu/fluxfilter/internal/query"
	"github.com/fluxbase-eu/fluxfilter/internal/schema"
	"github.com/fluxbase-eu/fluxfilter/internal/validation"
)

// FilterHandler serves schema lookups and filter validation/compilation
type FilterHandler struct {
	registry    *schema.Registry
	parseOpts   query.ParseOptions
	compileOpts compiler.Options
	metrics     *observability.Metrics
}

// NewFilterHandler creates a filter handler. metrics may be nil.
func NewFilterHandler(registry *schema.Registry, parseOpts query.ParseOptions, compileOpts compiler.Options, metrics *observability.Metrics) *FilterHandler {
	return &FilterHandler{
		registry:    registry,
		parseOpts:   parseOpts,
		compileOpts: compileOpts,
		metrics:     metrics,
	}
}

// filterRequest is the POST body of the validate and compile endpoints
type filterRequest struct {
	Filter      json.RawMessage `json:"filter"`
	Logic       string          `json:"logic,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
}

// filterInput returns the body filter in a shape ParseFilter accepts. An
// object is passed as JSON text so its clauses keep their written order.
func (r filterRequest) filterInput() (any, error) {
	raw := bytes.TrimSpace(r.Filter)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		return string(raw), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SchemaSummary is one entry of the schema listing
type SchemaSummary struct {
	Resource string   `json:"resource"`
	Version  string   `json:"version,omitempty"`
	Fields   []string `json:"fields"`
}

// CompileResponse is returned by the compile endpoint
type CompileResponse struct {
	Resource string            `json:"resource"`
	SQL      string            `json:"sql"`
	Where    string            `json:"where"`
	Params   []any             `json:"params"`
	Sort     []query.SortField `json:"sort,omitempty"`
	Limit    *int              `json:"limit,omitempty"`
	Offset   *int              `json:"offset,omitempty"`
	Fields   []string          `json:"fields,omitempty"`
}

// ListSchemas handles GET /v1/schemas
func (h *FilterHandler) ListSchemas(c *fiber.Ctx) error {
	schemas := h.registry.List()
	out := make([]SchemaSummary, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, SchemaSummary{
			Resource: s.Resource,
			Version:  s.Version,
			Fields:   s.FieldNames(),
		})
	}
	return c.JSON(fiber.Map{
		"schemas": out,
		"count":   len(out),
	})
}

// GetSchema handles GET /v1/schemas/:resource
func (h *FilterHandler) GetSchema(c *fiber.Ctx) error {
	resource := c.Params("resource")
	s, ok := h.registry.Get(resource)
	if !ok {
		return sendUnknownResource(c, resource)
	}
	return c.JSON(s)
}

// Validate handles GET|POST /v1/filters/:resource/validate. A valid filter
// returns the validation result; an invalid one returns a problem document.
func (h *FilterHandler) Validate(c *fiber.Ctx) error {
	s, ok := h.lookup(c)
	if !ok {
		return sendUnknownResource(c, c.Params("resource"))
	}

	req, err := h.parseRequest(c, s.Resource)
	if err != nil {
		return h.handleParseError(c, err)
	}

	ctx, span := observability.StartFilterSpan(c.UserContext(), observability.StageValidate, s.Resource)
	result := validation.ValidateFilters(req.query.Filters, s)
	observability.SetFilterResult(ctx, len(req.query.Filters), len(result.Errors))
	observability.EndFilterSpan(span, result.Err())
	h.recordValidation(s.Resource, result)

	if !result.Valid {
		return sendProblem(c, validation.NewProblem(result, c.Path()))
	}
	return c.JSON(result)
}

// Compile handles GET|POST /v1/filters/:resource/compile
func (h *FilterHandler) Compile(c *fiber.Ctx) error {
	s, ok := h.lookup(c)
	if !ok {
		return sendUnknownResource(c, c.Params("resource"))
	}

	req, err := h.parseRequest(c, s.Resource)
	if err != nil {
		return h.handleParseError(c, err)
	}

	opts := h.compileOpts
	if req.logic != "" {
		logic, err := compiler.ParseLogic(req.logic)
		if err != nil {
			return SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "INVALID_LOGIC")
		}
		opts.Logic = logic
	}
	if req.placeholder != "" {
		style, err := compiler.ParsePlaceholderStyle(req.placeholder)
		if err != nil {
			return SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "INVALID_PLACEHOLDER")
		}
		opts.Placeholder = style
	}

	ctx, span := observability.StartFilterSpan(c.UserContext(), observability.StageValidate, s.Resource)
	validated, result := compiler.Validate(req.query.Filters, s)
	observability.SetFilterResult(ctx, len(req.query.Filters), len(result.Errors))
	observability.EndFilterSpan(span, result.Err())
	h.recordValidation(s.Resource, result)

	if !result.Valid {
		return sendProblem(c, validation.NewProblem(result, c.Path()))
	}

	_, span = observability.StartFilterSpan(c.UserContext(), observability.StageCompile, s.Resource)
	start := time.Now()
	compiled, err := compiler.CompileValidated(validated, opts)
	if h.metrics != nil {
		h.metrics.RecordCompile(s.Resource, len(validated), time.Since(start), err)
	}
	observability.EndFilterSpan(span, err)
	if err != nil {
		log.Error().
			Err(err).
			Str("resource", s.Resource).
			Str("request_id", getRequestID(c)).
			Msg("Failed to compile validated filter")
		return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to compile filter", "COMPILE_ERROR")
	}

	return c.JSON(CompileResponse{
		Resource: s.Resource,
		SQL:      compiled.SQL,
		Where:    compiled.Where(),
		Params:   compiled.Params,
		Sort:     req.query.Sort,
		Limit:    req.query.Limit,
		Offset:   req.query.Offset,
		Fields:   req.query.Fields,
	})
}

func (h *FilterHandler) lookup(c *fiber.Ctx) (*schema.FilterSchema, bool) {
	resource := c.Params("resource")
	c.Locals(middleware.LocalResource, resource)
	return h.registry.Get(resource)
}

// parsedRequest is a filter request after the parse stage
type parsedRequest struct {
	query       *query.FilterQuery
	logic       string
	placeholder string
}

// parseRequest reads the filter from the query string (GET) or the JSON
// body (POST). Paging and sort parameters are always read from the query
// string.
func (h *FilterHandler) parseRequest(c *fiber.Ctx, resource string) (*parsedRequest, error) {
	ctx, span := observability.StartFilterSpan(c.UserContext(), observability.StageParse, resource)

	req, err := h.parse(c)
	if h.metrics != nil {
		h.metrics.RecordParse(err)
	}
	if err == nil {
		observability.SetFilterResult(ctx, len(req.query.Filters), 0)
		c.Locals(middleware.LocalFilterCount, len(req.query.Filters))
	}
	observability.EndFilterSpan(span, err)
	return req, err
}

func (h *FilterHandler) parse(c *fiber.Ctx) (*parsedRequest, error) {
	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return nil, &query.ParseError{
			Input:    string(c.Request().URI().QueryString()),
			Reason:   "malformed query string",
			Expected: "URL-encoded parameters",
		}
	}

	req := &parsedRequest{
		logic:       values.Get("logic"),
		placeholder: values.Get("placeholder"),
	}

	if c.Method() != fiber.MethodPost {
		req.query, err = query.ParseQueryParams(values, h.parseOpts)
		return req, err
	}

	var body filterRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return nil, &query.ParseError{
				Input:    truncate(string(c.Body()), 64),
				Reason:   "request body is not a JSON object",
				Expected: `{"filter": ..., "logic": "and"}`,
			}
		}
	}

	// Body filter replaces any filter given in the query string.
	values.Del("filter")
	req.query, err = query.ParseQueryParams(values, h.parseOpts)
	if err != nil {
		return nil, err
	}
	filter, err := body.filterInput()
	if err != nil {
		return nil, &query.ParseError{
			Input:    truncate(string(body.Filter), 64),
			Reason:   "filter is not valid JSON",
			Expected: `{"filter": ..., "logic": "and"}`,
		}
	}
	req.query.Filters, err = query.ParseFilterParamsWithOptions(map[string]any{"filter": filter}, h.parseOpts)
	if err != nil {
		return nil, err
	}

	if body.Logic != "" {
		req.logic = body.Logic
	}
	if body.Placeholder != "" {
		req.placeholder = body.Placeholder
	}
	return req, nil
}

func (h *FilterHandler) handleParseError(c *fiber.Ctx, err error) error {
	if errors.Is(err, query.ErrInvalidFormat) {
		return sendProblem(c, validation.NewParseProblem(err, c.Path()))
	}
	return SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "INVALID_QUERY")
}

func (h *FilterHandler) recordValidation(resource string, result validation.Result) {
	if h.metrics == nil {
		return
	}
	codes := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, string(e.Code))
	}
	h.metrics.RecordValidation(resource, codes)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
