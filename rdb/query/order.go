package query

import (
	"strings"
	"unicode"
)

// Order 生成 ORDER BY 片段。以 $ 开头时去掉 $ 原样输出；
// 否则按逗号切分，每段开头的字段名加引号，后面的 ASC/DESC 等修饰原样保留
func Order(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "$") {
		return raw[1:]
	}

	var parts []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name, suffix := token, ""
		if i := strings.IndexFunc(token, unicode.IsSpace); i >= 0 {
			name, suffix = token[:i], token[i:]
		}
		parts = append(parts, QuoteIdentifier(name)+suffix)
	}
	return strings.Join(parts, ", ")
}
