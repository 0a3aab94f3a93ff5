package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Row maps column names to values.
type Row map[string]any

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs CRUD statements against an executor.
type queries struct {
	ex      executor
	dialect dialect
}

func (q queries) insert(ctx context.Context, def TableDef, row Row) error {
	if err := def.checkRow(row); err != nil {
		return err
	}
	names := slices.Sorted(maps.Keys(row))
	if len(names) == 0 {
		return fmt.Errorf("insert into %s: empty row", def.Name)
	}

	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		cols[i] = quoteIdent(n)
		marks[i] = q.dialect.placeholder(i + 1)
		args[i] = row[n]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(def.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := q.ex.ExecContext(ctx, stmt, args...); err != nil {
		return translateError(def.Name, err)
	}
	return nil
}

func (q queries) find(ctx context.Context, def TableDef, where Row) (Row, bool, error) {
	rows, err := q.selectRows(ctx, def, where, 1)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (q queries) update(ctx context.Context, def TableDef, where, set Row) (int64, error) {
	if err := def.checkRow(set); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, fmt.Errorf("update %s: nothing to set", def.Name)
	}

	n := 0
	var args []any
	var assigns []string
	for _, name := range slices.Sorted(maps.Keys(set)) {
		n++
		assigns = append(assigns, quoteIdent(name)+" = "+q.dialect.placeholder(n))
		args = append(args, set[name])
	}

	cond, condArgs, err := q.whereClause(def, where, n)
	if err != nil {
		return 0, err
	}
	args = append(args, condArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s%s", quoteIdent(def.Name), strings.Join(assigns, ", "), cond)
	res, err := q.ex.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, translateError(def.Name, err)
	}
	return res.RowsAffected()
}

func (q queries) count(ctx context.Context, def TableDef) (int64, error) {
	var n int64
	stmt := "SELECT COUNT(*) FROM " + quoteIdent(def.Name)
	if err := q.ex.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", def.Name, err)
	}
	return n, nil
}

// selectRows returns rows matching where ordered by id. limit <= 0 means
// no limit.
func (q queries) selectRows(ctx context.Context, def TableDef, where Row, limit int) ([]Row, error) {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	cond, args, err := q.whereClause(def, where, 0)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id", strings.Join(cols, ", "), quoteIdent(def.Name), cond)
	if limit > 0 {
		stmt += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := q.ex.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		raw := make([]any, len(def.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", def.Name, err)
		}

		row := make(Row, len(def.Columns))
		for i, c := range def.Columns {
			v, err := normalize(c, raw[i])
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", def.Name, err)
			}
			row[c.Name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Name, err)
	}
	return out, nil
}

// whereClause builds an AND of equalities. Placeholders are numbered from
// offset+1.
func (q queries) whereClause(def TableDef, where Row, offset int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	if err := def.checkRow(where); err != nil {
		return "", nil, err
	}

	var conds []string
	var args []any
	for _, name := range slices.Sorted(maps.Keys(where)) {
		offset++
		conds = append(conds, quoteIdent(name)+" = "+q.dialect.placeholder(offset))
		args = append(args, where[name])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// normalize converts a scanned value to int64, string or bool.
func normalize(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case []byte:
			return strconv.ParseInt(string(x), 10, 64)
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case []byte:
			return strconv.ParseBool(string(x))
		case string:
			return strconv.ParseBool(x)
		}
	}
	return nil, fmt.Errorf("column %s: unexpected %T for %s", c.Name, v, c.Type)
}

func (d *DB) queries() queries {
	return queries{ex: d.db, dialect: d.dialect}
}

// Insert adds a row.
func (d *DB) Insert(ctx context.Context, def TableDef, row Row) error {
	return d.queries().insert(ctx, def, row)
}

// Find returns the first row (by id) matching where.
func (d *DB) Find(ctx context.Context, def TableDef, where Row) (Row, bool, error) {
	return d.queries().find(ctx, def, where)
}

// Update sets columns on every row matching where and returns the number
// of rows changed.
func (d *DB) Update(ctx context.Context, def TableDef, where, set Row) (int64, error) {
	return d.queries().update(ctx, def, where, set)
}

// Count returns the number of rows.
func (d *DB) Count(ctx context.Context, def TableDef) (int64, error) {
	return d.queries().count(ctx, def)
}

// Rows returns every row ordered by insertion.
func (d *DB) Rows(ctx context.Context, def TableDef) ([]Row, error) {
	return d.queries().selectRows(ctx, def, nil, 0)
}
