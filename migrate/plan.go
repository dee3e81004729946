// Package migrate diffs declared logical schemas against the live physical
// schema of a backend and applies the resulting operations.
//
// Plans are computed fresh on every pass; nothing is persisted. "Already
// applied" is always decided by introspecting the backend.
package migrate

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Family identifies which kind of backend produced a plan.
type Family string

const (
	Relational Family = "relational"
	Document   Family = "document"
)

// OpKind identifies what an operation changes.
type OpKind string

const (
	CreateTable      OpKind = "create_table"
	AddColumn        OpKind = "add_column"
	CreateCollection OpKind = "create_collection"
	CollMod          OpKind = "coll_mod"
)

// Operation is one schema change. Relational operations carry a
// ready-to-execute SQL statement; document operations carry a database
// command.
type Operation struct {
	Family  Family
	Kind    OpKind
	Table   string
	Column  string
	SQL     string
	Command bson.D
}

// Plan is an ordered list of operations with one log line per operation.
// Log[i] describes Operations[i].
type Plan struct {
	Family     Family
	Operations []Operation
	Log        []string
}

// Empty reports whether the plan has nothing to apply.
func (p Plan) Empty() bool {
	return len(p.Operations) == 0
}

func (p *Plan) add(op Operation, line string) {
	p.Operations = append(p.Operations, op)
	p.Log = append(p.Log, line)
}

// Options tunes planner output.
type Options struct {
	// EnforceRequired emits NOT NULL for required fields in CREATE TABLE and
	// lists required fields in document validators. Off by default so that
	// existing rows and documents with missing values keep validating.
	EnforceRequired bool
}
