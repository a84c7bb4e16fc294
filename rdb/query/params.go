package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Pair struct {
	Key   string
	Value any
}

// Params 保持键顺序的参数列表，JSON 对象解码时按出现顺序保存，数字解码为 json.Number，
// 重复的键（大小写敏感）只保留最后一个值
type Params []Pair

// Get 精确匹配第一个键
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// GetFold 大小写不敏感地匹配第一个键，返回实际的键
func (p Params) GetFold(key string) (string, any, bool) {
	for _, kv := range p {
		if strings.EqualFold(kv.Key, key) {
			return kv.Key, kv.Value, true
		}
	}
	return "", nil, false
}

func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, kv := range p {
		keys = append(keys, kv.Key)
	}
	return keys
}

// Without 返回去掉指定键（精确匹配）之后的副本
func (p Params) Without(keys ...string) Params {
	out := make(Params, 0, len(p))
	for _, kv := range p {
		drop := false
		for _, k := range keys {
			if kv.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}

// Set 替换第一个同名键的值，不存在时追加，返回副本
func (p Params) Set(key string, value any) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Pair{Key: key, Value: value})
}

// Map 转成 map，同名键以后出现的为准
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}
	return m
}

func (p *Params) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	out := Params{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		// 重复的键保留第一次出现的位置，值以最后一次为准
		if i, ok := index[key]; ok {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, Pair{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
