package query_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/shipq/polyq/query"
	"github.com/shipq/polyq/query/docstore"
)

// This file is a tiny in-memory interpreter for the subset of MongoDB
// query and pipeline syntax the document compiler emits. It stands in for
// a server so parity can be checked in-process.

func runCommand(t *testing.T, cmd docstore.Command, docs []query.Row) []query.Row {
	t.Helper()

	if cmd.Empty {
		return []query.Row{}
	}
	if cmd.IsAggregate() {
		return cmd.Reshape(runPipeline(t, cmd, docs))
	}

	var out []query.Row
	for _, doc := range docs {
		if matches(t, doc, cmd.Filter) {
			out = append(out, doc)
		}
	}
	if find := cmd.Find; find != nil {
		out = sortDocs(t, out, find.Sort)
		if find.Skip != nil {
			out = skipDocs(out, *find.Skip)
		}
		if find.Limit != nil {
			// the driver reads 0 as no limit
			if *find.Limit <= 0 {
				t.Fatalf("evaluator: find limit %d is not a positive limit", *find.Limit)
			}
			out = limitDocs(out, *find.Limit)
		}
	}
	for i, doc := range out {
		out[i] = project(doc, cmd.Find)
	}
	return out
}

func project(doc query.Row, find *docstore.FindOptions) query.Row {
	if find == nil || len(find.Projection) == 0 {
		return doc
	}
	row := query.Row{}
	for _, e := range find.Projection {
		if e.Value == 1 {
			if v, ok := doc[e.Key]; ok {
				row[e.Key] = v
			}
		}
	}
	return row
}

func matches(t *testing.T, doc query.Row, filter bson.D) bool {
	t.Helper()

	for _, e := range filter {
		switch e.Key {
		case "$and":
			for _, child := range e.Value.(bson.A) {
				if !matches(t, doc, child.(bson.D)) {
					return false
				}
			}
		case "$or":
			hit := false
			for _, child := range e.Value.(bson.A) {
				if matches(t, doc, child.(bson.D)) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		default:
			ops, isOps := e.Value.(bson.D)
			if !isOps || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
				if compare(doc[e.Key], e.Value) != 0 {
					return false
				}
				continue
			}
			for _, op := range ops {
				if !apply(t, doc[e.Key], op.Key, op.Value) {
					return false
				}
			}
		}
	}
	return true
}

func apply(t *testing.T, v any, op string, arg any) bool {
	t.Helper()

	switch op {
	case "$gt":
		return sameBracket(v, arg) && compare(v, arg) > 0
	case "$lt":
		return sameBracket(v, arg) && compare(v, arg) < 0
	case "$gte":
		return sameBracket(v, arg) && compare(v, arg) >= 0
	case "$lte":
		return sameBracket(v, arg) && compare(v, arg) <= 0
	case "$in":
		for _, candidate := range arg.(bson.A) {
			if sameBracket(v, candidate) && compare(v, candidate) == 0 {
				return true
			}
		}
		return false
	}
	t.Fatalf("evaluator: unsupported operator %s", op)
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sameBracket reports whether MongoDB would compare the two values directly
// rather than by type bracket.
func sameBracket(a, b any) bool {
	_, an := number(a)
	_, bn := number(b)
	if an || bn {
		return an && bn
	}
	_, as := a.(string)
	_, bs := b.(string)
	return as && bs
}

func compare(a, b any) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// =============================================================================
// Pipelines
// =============================================================================

func runPipeline(t *testing.T, cmd docstore.Command, docs []query.Row) []query.Row {
	t.Helper()

	cur := docs
	for _, stage := range cmd.Pipeline {
		s := stage[0]
		switch s.Key {
		case "$match":
			var kept []query.Row
			for _, doc := range cur {
				if matches(t, doc, s.Value.(bson.D)) {
					kept = append(kept, doc)
				}
			}
			cur = kept
		case "$group":
			cur = groupDocs(t, cur, s.Value.(bson.D))
		case "$sort":
			cur = sortDocs(t, cur, s.Value.(bson.D))
		case "$skip":
			cur = skipDocs(cur, s.Value.(int64))
		case "$limit":
			n := s.Value.(int64)
			if n <= 0 {
				t.Fatalf("evaluator: the limit must be positive, got $limit %d", n)
			}
			cur = limitDocs(cur, n)
		default:
			t.Fatalf("evaluator: unsupported stage %s", s.Key)
		}
	}
	return cur
}

// sortDocs is a stable sort on one key. Dotted keys reach into a compound
// _id.
func sortDocs(t *testing.T, docs []query.Row, by bson.D) []query.Row {
	t.Helper()

	if len(by) == 0 {
		return docs
	}
	if len(by) > 1 {
		t.Fatalf("evaluator: multi-key sort %v", by)
	}
	key := by[0].Key
	dir, ok := by[0].Value.(int)
	if !ok || (dir != 1 && dir != -1) {
		t.Fatalf("evaluator: bad sort direction %v", by[0].Value)
	}

	out := append([]query.Row(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		return dir*compare(path(out[i], key), path(out[j], key)) < 0
	})
	return out
}

func path(doc query.Row, key string) any {
	head, rest, nested := strings.Cut(key, ".")
	v := doc[head]
	if !nested {
		return v
	}
	if id, ok := v.(bson.D); ok {
		for _, e := range id {
			if e.Key == rest {
				return e.Value
			}
		}
	}
	return nil
}

func skipDocs(docs []query.Row, n int64) []query.Row {
	if n >= int64(len(docs)) {
		return nil
	}
	return docs[n:]
}

func limitDocs(docs []query.Row, n int64) []query.Row {
	if n < int64(len(docs)) {
		return docs[:n]
	}
	return docs
}

type bucket struct {
	id   any
	docs []query.Row
}

func groupDocs(t *testing.T, docs []query.Row, stage bson.D) []query.Row {
	t.Helper()

	idExpr := stage[0].Value
	buckets := map[string]*bucket{}
	var order []string
	for _, doc := range docs {
		id := groupKey(doc, idExpr)
		key := fmt.Sprint(id)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{id: id}
			buckets[key] = b
			order = append(order, key)
		}
		b.docs = append(b.docs, doc)
	}
	sort.Strings(order)

	out := make([]query.Row, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		row := query.Row{"_id": b.id}
		for _, acc := range stage[1:] {
			row[acc.Key] = accumulate(t, b.docs, acc.Value.(bson.D)[0])
		}
		out = append(out, row)
	}
	return out
}

func groupKey(doc query.Row, expr any) any {
	switch s := expr.(type) {
	case nil:
		return nil
	case string:
		return doc[strings.TrimPrefix(s, "$")]
	case bson.D:
		id := make(bson.D, len(s))
		for i, e := range s {
			id[i] = bson.E{Key: e.Key, Value: doc[strings.TrimPrefix(e.Value.(string), "$")]}
		}
		return id
	}
	return nil
}

func accumulate(t *testing.T, docs []query.Row, acc bson.E) any {
	t.Helper()

	var values []float64
	switch arg := acc.Value.(type) {
	case int:
		// {$sum: 1}
		return float64(arg * len(docs))
	case string:
		for _, doc := range docs {
			if n, ok := number(doc[strings.TrimPrefix(arg, "$")]); ok {
				values = append(values, n)
			}
		}
	default:
		t.Fatalf("evaluator: unsupported accumulator argument %T", acc.Value)
	}

	switch acc.Key {
	case "$sum":
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	case "$avg":
		if len(values) == 0 {
			return nil
		}
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case "$min", "$max":
		if len(values) == 0 {
			return nil
		}
		best := values[0]
		for _, v := range values[1:] {
			if (acc.Key == "$min" && v < best) || (acc.Key == "$max" && v > best) {
				best = v
			}
		}
		return best
	}
	t.Fatalf("evaluator: unsupported accumulator %s", acc.Key)
	return nil
}
