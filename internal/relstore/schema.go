package relstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// ColumnType is the logical type of a column.
type ColumnType string

const (
	TypeInteger ColumnType = "integer"
	TypeText    ColumnType = "text"
	TypeBoolean ColumnType = "boolean"
)

// Column describes one table column. Columns are NOT NULL unless Null is set.
type Column struct {
	Name string     `yaml:"name" json:"name"`
	Type ColumnType `yaml:"type" json:"type"`
	Null bool       `yaml:"null,omitempty" json:"null,omitempty"`
}

// Index describes a secondary index.
type Index struct {
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// TableDef describes a table.
type TableDef struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Column returns the named column.
func (t TableDef) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks identifiers, types and index references.
func (t TableDef) Validate() error {
	if err := validateIdent(t.Name); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := validateIdent(c.Name); err != nil {
			return fmt.Errorf("table %s: column: %w", t.Name, err)
		}
		if c.Name == "id" {
			return fmt.Errorf("table %s: column name id is reserved", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = true

		switch c.Type {
		case TypeInteger, TypeText, TypeBoolean:
		default:
			return fmt.Errorf("table %s: column %s: unknown type %q", t.Name, c.Name, c.Type)
		}
	}

	for i, idx := range t.Indexes {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("table %s: index %d has no columns", t.Name, i)
		}
		for _, col := range idx.Columns {
			if !seen[col] {
				return fmt.Errorf("table %s: index %d references unknown column %s", t.Name, i, col)
			}
		}
	}
	return nil
}

// checkRow rejects columns the table does not define.
func (t TableDef) checkRow(row Row) error {
	for name := range row {
		if _, ok := t.Column(name); !ok {
			return fmt.Errorf("table %s has no column %s", t.Name, name)
		}
	}
	return nil
}

func indexName(table string, idx Index) string {
	prefix := "index_"
	if idx.Unique {
		prefix = "unique_"
	}
	return prefix + table + "_on_" + strings.Join(idx.Columns, "_and_")
}

// CreateTable drops any existing table of the same name and creates it
// with an autoincrement id primary key, the declared columns and indexes.
func (d *DB) CreateTable(ctx context.Context, def TableDef) error {
	if err := def.Validate(); err != nil {
		return err
	}

	name := quoteIdent(def.Name)
	if _, err := d.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", def.Name, err)
	}

	cols := []string{"id " + d.dialect.primaryKey()}
	for _, c := range def.Columns {
		col := quoteIdent(c.Name) + " " + d.dialect.columnType(c.Type)
		if !c.Null {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(cols, ", "))
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", def.Name, err)
	}

	for _, idx := range def.Indexes {
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = quoteIdent(c)
		}
		stmt := "CREATE INDEX "
		if idx.Unique {
			stmt = "CREATE UNIQUE INDEX "
		}
		stmt += quoteIdent(indexName(def.Name, idx)) + " ON " + name + " (" + strings.Join(quoted, ", ") + ")"
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", def.Name, err)
		}
	}
	return nil
}
