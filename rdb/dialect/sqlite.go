package dialect

// SQLite 元数据来自 sqlite_master 和 pragma_table_info，需要 3.35 以上版本支持 RETURNING
type SQLite struct{}

func NewSQLite() *SQLite {
	return &SQLite{}
}

func (s *SQLite) Name() string {
	return "sqlite3"
}

func (s *SQLite) Placeholder(n int) string {
	return "?"
}

// Timestamp sqlite 没有时间戳类型，datetime() 遇到非法输入会返回 NULL，这里原样按文本绑定
func (s *SQLite) Timestamp(placeholder string) string {
	return placeholder
}

func (s *SQLite) TrimText(expr string) string {
	return trimText(expr)
}

func (s *SQLite) TableExists(table string) (string, []any) {
	return `SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND LOWER(name) = LOWER(?)`, []any{table}
}

func (s *SQLite) Columns(table string) (string, []any) {
	return `SELECT p.name AS column_name FROM sqlite_master m JOIN pragma_table_info(m.name) p ` +
		`WHERE m.type = 'table' AND LOWER(m.name) = LOWER(?) ORDER BY p.cid`, []any{table}
}

func (s *SQLite) PrimaryKey(table string) (string, []any) {
	return `SELECT p.name AS column_name FROM sqlite_master m JOIN pragma_table_info(m.name) p ` +
		`WHERE m.type = 'table' AND LOWER(m.name) = LOWER(?) AND p.pk > 0 ORDER BY p.pk`, []any{table}
}

func (s *SQLite) BaseTables() (string, []any) {
	return `SELECT name AS table_name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`, nil
}
