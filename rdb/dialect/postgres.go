package dialect

import (
	"strconv"
)

// Postgres 元数据来自 information_schema，限定在一个 schema 内
type Postgres struct {
	schema string
}

func NewPostgres(schema string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{schema: schema}
}

func (p *Postgres) Name() string {
	return "postgres"
}

func (p *Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (p *Postgres) Timestamp(placeholder string) string {
	return "CAST(" + placeholder + " AS TIMESTAMP)"
}

func (p *Postgres) TrimText(expr string) string {
	return trimText(expr)
}

func (p *Postgres) TableExists(table string) (string, []any) {
	return `SELECT COUNT(*) AS n FROM information_schema.tables WHERE table_schema = $1 AND LOWER(table_name) = LOWER($2)`,
		[]any{p.schema, table}
}

func (p *Postgres) Columns(table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND LOWER(table_name) = LOWER($2) ORDER BY ordinal_position`,
		[]any{p.schema, table}
}

func (p *Postgres) PrimaryKey(table string) (string, []any) {
	return `SELECT kcu.column_name FROM information_schema.table_constraints tc ` +
			`JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema ` +
			`WHERE tc.table_schema = $1 AND LOWER(tc.table_name) = LOWER($2) AND tc.constraint_type = 'PRIMARY KEY' ` +
			`ORDER BY kcu.ordinal_position`,
		[]any{p.schema, table}
}

func (p *Postgres) BaseTables() (string, []any) {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`,
		[]any{p.schema}
}
