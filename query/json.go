package query

import (
	"encoding/json"
	"fmt"
)

// SerializedAST is the JSON representation of an AST.
type SerializedAST struct {
	Kind          string             `json:"kind"`
	Table         string             `json:"table"`
	Conditions    []SerializedNode   `json:"conditions,omitempty"`
	LogicalGroups []SerializedNode   `json:"logical_groups,omitempty"`
	GroupBy       []string           `json:"group_by,omitempty"`
	Aggregations  []SerializedAgg    `json:"aggregations,omitempty"`
	Projection    []string           `json:"projection,omitempty"`
	OrderBy       *SerializedOrderBy `json:"order_by,omitempty"`
	Limit         *int               `json:"limit,omitempty"`
	Offset        *int               `json:"offset,omitempty"`
	Data          map[string]any     `json:"data,omitempty"`
	Intent        string             `json:"intent,omitempty"`
}

// SerializedNode is a filter node in JSON form.
// Uses a tagged union pattern for type discrimination.
type SerializedNode struct {
	Type string `json:"type"` // "condition", "group"

	// condition
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"` // operator or "AND"/"OR"
	Value any    `json:"value,omitempty"`

	// group
	Children []SerializedNode `json:"children,omitempty"`
}

// SerializedAgg is an aggregation in JSON form.
type SerializedAgg struct {
	Func  string `json:"func"`
	Field string `json:"field,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// SerializedOrderBy is the sort key in JSON form.
type SerializedOrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a AST) MarshalJSON() ([]byte, error) {
	s, err := Serialize(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AST) UnmarshalJSON(data []byte) error {
	var s SerializedAST
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ast, err := Deserialize(s)
	if err != nil {
		return err
	}
	*a = ast
	return nil
}

// Serialize converts an AST to its JSON form.
func Serialize(a AST) (SerializedAST, error) {
	s := SerializedAST{
		Kind:       string(a.Kind),
		Table:      a.Table,
		GroupBy:    a.GroupBy,
		Projection: a.Projection,
		Limit:      a.Limit,
		Offset:     a.Offset,
		Data:       a.Data,
		Intent:     string(a.Intent),
	}
	for _, c := range a.Conditions {
		s.Conditions = append(s.Conditions, serializeCondition(c))
	}
	for _, g := range a.LogicalGroups {
		sn, err := serializeNode(g)
		if err != nil {
			return SerializedAST{}, err
		}
		s.LogicalGroups = append(s.LogicalGroups, sn)
	}
	for _, agg := range a.Aggregations {
		s.Aggregations = append(s.Aggregations, SerializedAgg{Func: string(agg.Func), Field: agg.Field, Alias: agg.Alias})
	}
	if a.OrderBy != nil {
		s.OrderBy = &SerializedOrderBy{Field: a.OrderBy.Field, Direction: string(a.OrderBy.Direction)}
	}
	return s, nil
}

func serializeCondition(c Condition) SerializedNode {
	return SerializedNode{Type: "condition", Field: c.Field, Op: string(c.Op), Value: c.Value}
}

func serializeNode(n Node) (SerializedNode, error) {
	switch v := n.(type) {
	case Condition:
		return serializeCondition(v), nil
	case *Condition:
		return serializeCondition(*v), nil
	case Group:
		return serializeGroup(v)
	case *Group:
		return serializeGroup(*v)
	default:
		return SerializedNode{}, fmt.Errorf("unknown filter node type: %T", n)
	}
}

func serializeGroup(g Group) (SerializedNode, error) {
	out := SerializedNode{Type: "group", Op: string(g.Op)}
	for _, child := range g.Children {
		sn, err := serializeNode(child)
		if err != nil {
			return SerializedNode{}, err
		}
		out.Children = append(out.Children, sn)
	}
	return out, nil
}

// Deserialize converts the JSON form back to an AST.
func Deserialize(s SerializedAST) (AST, error) {
	a := AST{
		Kind:       Kind(s.Kind),
		Table:      s.Table,
		GroupBy:    s.GroupBy,
		Projection: s.Projection,
		Limit:      s.Limit,
		Offset:     s.Offset,
		Data:       s.Data,
		Intent:     Intent(s.Intent),
	}
	for i, sn := range s.Conditions {
		if sn.Type != "condition" {
			return AST{}, fmt.Errorf("conditions[%d]: expected condition, got %q", i, sn.Type)
		}
		a.Conditions = append(a.Conditions, Condition{Field: sn.Field, Op: Operator(sn.Op), Value: sn.Value})
	}
	for i, sn := range s.LogicalGroups {
		if sn.Type != "group" {
			return AST{}, fmt.Errorf("logical_groups[%d]: expected group, got %q", i, sn.Type)
		}
		n, err := deserializeNode(sn)
		if err != nil {
			return AST{}, fmt.Errorf("logical_groups[%d]: %w", i, err)
		}
		a.LogicalGroups = append(a.LogicalGroups, n.(Group))
	}
	for _, agg := range s.Aggregations {
		a.Aggregations = append(a.Aggregations, Aggregation{Func: AggFunc(agg.Func), Field: agg.Field, Alias: agg.Alias})
	}
	if s.OrderBy != nil {
		a.OrderBy = &OrderBy{Field: s.OrderBy.Field, Direction: Direction(s.OrderBy.Direction)}
	}
	return a, nil
}

func deserializeNode(sn SerializedNode) (Node, error) {
	switch sn.Type {
	case "condition":
		return Condition{Field: sn.Field, Op: Operator(sn.Op), Value: sn.Value}, nil
	case "group":
		g := Group{Op: LogicalOp(sn.Op)}
		for _, child := range sn.Children {
			n, err := deserializeNode(child)
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, n)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown node type: %q", sn.Type)
	}
}
