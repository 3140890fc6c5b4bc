package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

// GetInput is the input schema for the get_entity tool.
type GetInput struct {
	ID string `json:"id" jsonschema:"the URI of the entity"`
}

// ConstraintInput is one field constraint of a find_entities call.
type ConstraintInput struct {
	Field    string `json:"field" jsonschema:"the field URI to constrain"`
	Kind     string `json:"kind" jsonschema:"value, text or range"`
	Value    string `json:"value,omitempty" jsonschema:"value to match, or the wildcard pattern of a text constraint"`
	Lower    string `json:"lower,omitempty" jsonschema:"inclusive lower bound of a range"`
	Upper    string `json:"upper,omitempty" jsonschema:"exclusive upper bound of a range"`
	Language string `json:"language,omitempty" jsonschema:"language of a text constraint (default any)"`
	Strict   bool   `json:"strict,omitempty" jsonschema:"text patterns must match the whole value"`
	Tokens   bool   `json:"tokens,omitempty" jsonschema:"match a text value token by token"`
}

// FindInput is the input schema for the find_entities tool.
type FindInput struct {
	Constraints []ConstraintInput `json:"constraints" jsonschema:"constraints every result must satisfy"`
	Select      []string          `json:"select,omitempty" jsonschema:"fields to return (default all)"`
	Limit       int               `json:"limit,omitempty" jsonschema:"maximum number of results"`
	Offset      int               `json:"offset,omitempty" jsonschema:"number of results to skip"`
}

// FindOutput is the output schema for the find_entities tool.
type FindOutput struct {
	Entities []EntityOutput `json:"entities"`
	Count    int            `json:"count"`
}

// CountInput is the input schema for the count_entities tool.
type CountInput struct{}

// CountOutput is the output schema for the count_entities tool.
type CountOutput struct {
	Count int `json:"count"`
}

// EntityOutput is an entity with its values in the notation of
// domain.Value.String.
type EntityOutput struct {
	ID     string              `json:"id"`
	Fields map[string][]string `json:"fields"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_entity",
		Description: "Get an entity by its URI",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "find_entities",
		Description: "Find entities matching every field constraint, ordered by id. " +
			`Values are written as <uri>, "text"@lang, bare text for any language, ` +
			"numbers, true/false or RFC 3339 dates.",
	}, s.handleFind)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "count_entities",
		Description: "Count the entities stored in the yard",
	}, s.handleCount)
}

func (s *Server) handleGet(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetInput,
) (*mcp.CallToolResult, EntityOutput, error) {
	rep, err := s.ports.Yard.Get(ctx, input.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, EntityOutput{}, fmt.Errorf("entity not found: %s", input.ID)
	}
	if err != nil {
		return nil, EntityOutput{}, err
	}
	return nil, toEntityOutput(rep), nil
}

func (s *Server) handleFind(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindInput,
) (*mcp.CallToolResult, FindOutput, error) {
	q, err := buildQuery(input)
	if err != nil {
		return nil, FindOutput{}, err
	}
	mcpLog.Debug("find_entities with %d constraints", len(q.Constraints))

	reps, err := s.ports.Yard.Find(ctx, q)
	if err != nil {
		return nil, FindOutput{}, err
	}

	output := FindOutput{
		Entities: make([]EntityOutput, len(reps)),
		Count:    len(reps),
	}
	for i, rep := range reps {
		output.Entities[i] = toEntityOutput(rep)
	}
	return nil, output, nil
}

func (s *Server) handleCount(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ CountInput,
) (*mcp.CallToolResult, CountOutput, error) {
	n, err := s.ports.Yard.Count(ctx)
	if err != nil {
		return nil, CountOutput{}, err
	}
	return nil, CountOutput{Count: n}, nil
}

// buildQuery converts tool input into a validated FieldQuery.
func buildQuery(input FindInput) (*domain.FieldQuery, error) {
	q := domain.NewFieldQuery()
	q.Limit = input.Limit
	q.Offset = input.Offset
	q.Select(input.Select...)

	for _, in := range input.Constraints {
		c, err := toConstraint(in)
		if err != nil {
			return nil, fmt.Errorf("constraint on %s: %w", in.Field, err)
		}
		q.Constrain(in.Field, c)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func toConstraint(in ConstraintInput) (domain.Constraint, error) {
	switch strings.ToLower(in.Kind) {
	case "value":
		v, err := domain.ParseValue(in.Value)
		if err != nil {
			return nil, err
		}
		c := domain.NewValueConstraint(v)
		if in.Tokens {
			c.Type = domain.TypeText
		}
		return c, nil

	case "text":
		c := domain.NewTextConstraint(in.Value, in.Strict)
		if in.Language != "" {
			c.Language = in.Language
		}
		return c, nil

	case "range":
		var lower, upper domain.Value
		var err error
		if in.Lower != "" {
			if lower, err = domain.ParseValue(in.Lower); err != nil {
				return nil, err
			}
		}
		if in.Upper != "" {
			if upper, err = domain.ParseValue(in.Upper); err != nil {
				return nil, err
			}
		}
		return domain.NewRangeConstraint(lower, upper), nil

	default:
		return nil, fmt.Errorf("%w: constraint kind %q", domain.ErrInvalidInput, in.Kind)
	}
}

func toEntityOutput(rep *domain.Representation) EntityOutput {
	out := EntityOutput{ID: rep.ID, Fields: make(map[string][]string, rep.Len())}
	for _, field := range rep.Fields() {
		values := rep.Get(field)
		strs := make([]string, len(values))
		for i, v := range values {
			strs[i] = v.String()
		}
		out.Fields[field] = strs
	}
	return out
}
