package relstore

import "strconv"

type dialect interface {
	placeholder(n int) string
	primaryKey() string
	columnType(ColumnType) string
}

type sqliteDialect struct{}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) primaryKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) columnType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) primaryKey() string { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) columnType(t ColumnType) string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
