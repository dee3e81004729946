package query

import (
	"fmt"
	"reflect"
	"regexp"
)

// CompilationError reports an AST that is structurally invalid for its kind.
// Compilers return it before producing any output.
type CompilationError struct {
	Reason string
}

func (e *CompilationError) Error() string {
	return "compile: " + e.Reason
}

// Errorf creates a CompilationError with a formatted reason.
func Errorf(format string, args ...any) error {
	return &CompilationError{Reason: fmt.Sprintf(format, args...)}
}

// identifierRegex matches valid identifiers.
// Identifiers must start with a letter or underscore, followed by letters, digits, or underscores.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier checks that a name is a valid table, field or alias name.
func ValidateIdentifier(name string) error {
	if name == "" {
		return Errorf("identifier cannot be empty")
	}
	if !identifierRegex.MatchString(name) {
		return Errorf("invalid identifier %q: must start with a letter or underscore and contain only letters, digits, and underscores", name)
	}
	return nil
}

// ValidateAST validates AST invariants before compilation.
// This catches errors early with clear messages rather than producing
// output that the backend rejects.
func ValidateAST(ast AST) error {
	if ast.Table == "" {
		return Errorf("table name cannot be empty")
	}
	if err := ValidateIdentifier(ast.Table); err != nil {
		return Errorf("table: %v", reason(err))
	}

	switch ast.Kind {
	case SelectQuery, DeleteQuery:
		if ast.Data != nil {
			return Errorf("%s query cannot carry data", ast.Kind)
		}
	case InsertQuery, UpdateQuery:
		if len(ast.Data) == 0 {
			return Errorf("%s query requires data", ast.Kind)
		}
		for field := range ast.Data {
			if err := ValidateIdentifier(field); err != nil {
				return Errorf("data: %v", reason(err))
			}
		}
	default:
		return Errorf("unknown query kind: %q", ast.Kind)
	}

	for i, c := range ast.Conditions {
		if err := validateCondition(c); err != nil {
			return Errorf("condition %d: %v", i, reason(err))
		}
	}
	for i, g := range ast.LogicalGroups {
		if err := validateGroup(g); err != nil {
			return Errorf("logical group %d: %v", i, reason(err))
		}
	}

	for _, f := range ast.GroupBy {
		if err := ValidateIdentifier(f); err != nil {
			return Errorf("group by: %v", reason(err))
		}
	}
	for i, agg := range ast.Aggregations {
		if !agg.Func.Valid() {
			return Errorf("aggregation %d: unknown function %q", i, agg.Func)
		}
		if !agg.CountsRows() {
			if err := ValidateIdentifier(agg.Field); err != nil {
				return Errorf("aggregation %d field: %v", i, reason(err))
			}
		}
		if agg.Alias != "" {
			if err := ValidateIdentifier(agg.Alias); err != nil {
				return Errorf("aggregation %d alias: %v", i, reason(err))
			}
		}
	}
	for _, f := range ast.Projection {
		if err := ValidateIdentifier(f); err != nil {
			return Errorf("projection: %v", reason(err))
		}
	}

	if ast.OrderBy != nil {
		if err := ValidateIdentifier(ast.OrderBy.Field); err != nil {
			return Errorf("order by: %v", reason(err))
		}
		switch ast.OrderBy.Direction {
		case "", Asc, Desc:
		default:
			return Errorf("order by: unknown direction %q", ast.OrderBy.Direction)
		}
	}
	if ast.Limit != nil && *ast.Limit < 0 {
		return Errorf("limit cannot be negative: %d", *ast.Limit)
	}
	if ast.Offset != nil && *ast.Offset < 0 {
		return Errorf("offset cannot be negative: %d", *ast.Offset)
	}

	return nil
}

func validateCondition(c Condition) error {
	if err := ValidateIdentifier(c.Field); err != nil {
		return err
	}
	if !c.Op.Valid() {
		return Errorf("unknown operator %q", c.Op)
	}
	if c.Op == OpIn {
		if _, err := ListValues(c.Value); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(g Group) error {
	if g.Op != And && g.Op != Or {
		return Errorf("unknown logical operator %q", g.Op)
	}
	for _, child := range g.Children {
		switch n := child.(type) {
		case Condition:
			if err := validateCondition(n); err != nil {
				return err
			}
		case *Condition:
			if n == nil {
				return Errorf("nil condition in group")
			}
			if err := validateCondition(*n); err != nil {
				return err
			}
		case Group:
			if err := validateGroup(n); err != nil {
				return err
			}
		case *Group:
			if n == nil {
				return Errorf("nil group in group")
			}
			if err := validateGroup(*n); err != nil {
				return err
			}
		default:
			return Errorf("unknown filter node %T", child)
		}
	}
	return nil
}

// ListValues flattens the value of an "in" condition into a slice.
// Any slice or array is accepted; other values are rejected.
func ListValues(v any) ([]any, error) {
	if vals, ok := v.([]any); ok {
		return vals, nil
	}
	if v == nil {
		return nil, Errorf("in operator requires a list, got nil")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, Errorf("in operator requires a list, got %T", v)
	}
	// []byte is a scalar value, not a list
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, Errorf("in operator requires a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func reason(err error) string {
	if ce, ok := err.(*CompilationError); ok {
		return ce.Reason
	}
	return err.Error()
}
