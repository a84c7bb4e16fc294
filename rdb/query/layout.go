package query

import (
	"strings"

	"github.com/hatlonely/restsql/rdb"
)

// Layout 嵌套的字段布局，节点可以是字段名、{"field": name}、{"subrow": [...]} 或者嵌套数组
type Layout []any

// Fields 深度优先展开布局，遇到通配符直接返回 *，没有字段时也返回 *
func Fields(layout Layout) (string, error) {
	var fields []string
	wildcard, err := collectFields(layout, &fields)
	if err != nil {
		return "", err
	}
	if wildcard || len(fields) == 0 {
		return "*", nil
	}
	return strings.Join(fields, ", "), nil
}

func collectFields(nodes []any, fields *[]string) (bool, error) {
	for _, node := range nodes {
		wildcard, err := collectNode(node, fields)
		if err != nil || wildcard {
			return wildcard, err
		}
	}
	return false, nil
}

func collectNode(node any, fields *[]string) (bool, error) {
	switch n := node.(type) {
	case string:
		return addField(n, fields)
	case []any:
		return collectFields(n, fields)
	case Layout:
		return collectFields(n, fields)
	case map[string]any:
		if f, ok := n["field"]; ok {
			name, ok := f.(string)
			if !ok {
				return false, rdb.NewBadRequest("layout field must be a string, got %T", f)
			}
			return addField(name, fields)
		}
		if sub, ok := n["subrow"]; ok {
			nodes, ok := sub.([]any)
			if !ok {
				return false, rdb.NewBadRequest("layout subrow must be a list, got %T", sub)
			}
			return collectFields(nodes, fields)
		}
		// 只有显示属性的节点不参与投影
		return false, nil
	case Params:
		return collectNode(n.Map(), fields)
	default:
		return false, rdb.NewBadRequest("unsupported layout node %T", node)
	}
}

func addField(name string, fields *[]string) (bool, error) {
	if name == "*" {
		return true, nil
	}
	if strings.TrimSpace(name) == "" {
		return false, rdb.NewBadRequest("layout field name is empty")
	}
	*fields = append(*fields, QuoteIdentifier(name))
	return false, nil
}
