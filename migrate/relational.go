package migrate

import (
	"context"
	"fmt"
	"strings"
)

// Dialect names understood by the relational planner.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// Inspector reports the live physical schema of a relational database.
type Inspector interface {
	// Tables lists the user tables.
	Tables(ctx context.Context) ([]string, error)

	// Columns lists the column names of an existing table.
	Columns(ctx context.Context, table string) ([]string, error)
}

// RelationalPlanner diffs schemas against a SQL database.
type RelationalPlanner struct {
	Dialect   string
	Inspector Inspector
	Options   Options
}

// Plan emits one CREATE TABLE per missing table and one ADD COLUMN per
// missing field of an existing table, in schema then field order.
func (p RelationalPlanner) Plan(ctx context.Context, schemas []Schema) (Plan, error) {
	plan := Plan{Family: Relational}

	if _, err := primaryKeyColumn(p.Dialect); err != nil {
		return Plan{}, err
	}

	tables, err := p.Inspector.Tables(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to list tables: %w", err)
	}
	existing := make(map[string]bool, len(tables))
	for _, t := range tables {
		existing[strings.ToLower(t)] = true
	}

	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return Plan{}, err
		}

		if !existing[strings.ToLower(s.Name)] {
			sql, err := CreateTableSQL(p.Dialect, s, p.Options)
			if err != nil {
				return Plan{}, err
			}
			plan.add(Operation{
				Family: Relational,
				Kind:   CreateTable,
				Table:  s.Name,
				SQL:    sql,
			}, fmt.Sprintf("create table %s with %d columns", s.Name, len(dataFields(s))))
			continue
		}

		cols, err := p.Inspector.Columns(ctx, s.Name)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to list columns of %s: %w", s.Name, err)
		}
		have := make(map[string]bool, len(cols))
		for _, c := range cols {
			have[strings.ToLower(c)] = true
		}

		for _, f := range dataFields(s) {
			if have[strings.ToLower(f.Name)] {
				continue
			}
			plan.add(Operation{
				Family: Relational,
				Kind:   AddColumn,
				Table:  s.Name,
				Column: f.Name,
				SQL:    AddColumnSQL(s.Name, f),
			}, fmt.Sprintf("add column %s.%s (%s)", s.Name, f.Name, f.Type))
		}
	}

	return plan, nil
}

// CreateTableSQL renders the CREATE TABLE statement for a schema.
func CreateTableSQL(dialect string, s Schema, opts Options) (string, error) {
	pk, err := primaryKeyColumn(dialect)
	if err != nil {
		return "", err
	}

	cols := []string{pk}
	for _, f := range dataFields(s) {
		col := f.Name + " " + SQLType(f.Type)
		if opts.EnforceRequired && f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", s.Name, strings.Join(cols, ", ")), nil
}

// AddColumnSQL renders an ALTER TABLE ... ADD COLUMN statement. Added columns
// are always nullable since existing rows have no value for them.
func AddColumnSQL(table string, f Field) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, f.Name, SQLType(f.Type))
}

// SQLType maps a field type to its column type.
func SQLType(t FieldType) string {
	switch t {
	case TypeString:
		return "VARCHAR(255)"
	case TypeNumber:
		return "FLOAT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "TIMESTAMP"
	case TypeObject, TypeArray:
		return "JSON"
	}
	return "TEXT"
}

func primaryKeyColumn(dialect string) (string, error) {
	switch dialect {
	case Postgres:
		return "id SERIAL PRIMARY KEY", nil
	case MySQL:
		return "id INT AUTO_INCREMENT PRIMARY KEY", nil
	case SQLite:
		return "id INTEGER PRIMARY KEY AUTOINCREMENT", nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// dataFields drops a declared id field; the generated primary key covers it.
func dataFields(s Schema) []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, "id") {
			continue
		}
		out = append(out, f)
	}
	return out
}
