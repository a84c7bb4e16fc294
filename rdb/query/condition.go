package query

import (
	"bytes"
	"encoding/json"
	"reflect"
)

const (
	KeyPreventCache = "dojo_preventCache"
	KeyOrder        = "SQL_ORDER"
)

// IsReserved 保留键不会作为过滤条件
func IsReserved(key string) bool {
	return key == KeyPreventCache || key == KeyOrder
}

// FilterSpec 过滤条件列表，JSON 可以是对象数组，也可以是单个对象，数组里的非对象元素忽略
type FilterSpec []Params

func (f *FilterSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = nil
		return nil
	}

	if data[0] == '{' {
		var p Params
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*f = FilterSpec{p}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(FilterSpec, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var p Params
		if err := json.Unmarshal(item, &p); err != nil {
			return err
		}
		out = append(out, p)
	}
	*f = out
	return nil
}

// Conditions 合并过滤条件：同一个键的不同取值去重后（保持首次出现的顺序）合并为 IN，
// 只有一个取值时为等值条件。count < 0 时不限制键的数量，
// 否则只保留前 count 个非保留键，之后的键直接忽略
func Conditions(spec FilterSpec, count int) Query {
	type group struct {
		key    string
		values []any
	}

	var groups []*group
	index := map[string]*group{}
	for _, params := range spec {
		for _, kv := range params {
			if IsReserved(kv.Key) {
				continue
			}
			g, ok := index[kv.Key]
			if !ok {
				if count >= 0 && len(groups) >= count {
					continue
				}
				g = &group{key: kv.Key}
				index[kv.Key] = g
				groups = append(groups, g)
			}
			if !containsValue(g.values, kv.Value) {
				g.values = append(g.values, kv.Value)
			}
		}
	}

	q := &BoolQuery{}
	for _, g := range groups {
		if len(g.values) == 1 {
			q.Must = append(q.Must, &TermQuery{Field: g.key, Value: g.values[0]})
		} else {
			q.Must = append(q.Must, &TermsQuery{Field: g.key, Values: g.values})
		}
	}
	return q
}

func containsValue(values []any, v any) bool {
	for _, x := range values {
		if reflect.DeepEqual(x, v) {
			return true
		}
	}
	return false
}
