package schema

import (
	"encoding/json"
	"strings"

	"github.com/hatlonely/restsql/cfg"
	"github.com/pkg/errors"
)

// Key 主键列，按定义顺序排列。JSON 中单列主键为字符串，复合主键为数组
type Key []string

func (k Key) IsComposite() bool {
	return len(k) > 1
}

// Value 单列主键返回字符串，复合主键返回数组，没有主键返回 nil
func (k Key) Value() any {
	switch len(k) {
	case 0:
		return nil
	case 1:
		return k[0]
	default:
		return []string(k)
	}
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Value())
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*k = nil
		} else {
			*k = Key{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(err, "key must be a string or a list of strings")
	}
	*k = list
	return nil
}

type Field struct {
	Name    string `cfg:"name" json:"name" validate:"required"`
	Type    string `cfg:"type" json:"type"`
	Comment string `cfg:"comment" json:"comment,omitempty"`
}

// Override 单表的写操作扩展点
type Override struct {
	// WriteKey 更新和删除时使用的主键列，替代声明的主键
	WriteKey Key `cfg:"writeKey" json:"writeKey,omitempty"`

	// TrimKeys 更新时主键比较两边都转成文本并去掉首尾空白，用于定长字符列
	TrimKeys bool `cfg:"trimKeys" json:"trimKeys,omitempty"`
}

type TableSchema struct {
	Name     string    `cfg:"name" json:"name" validate:"required"`
	Key      Key       `cfg:"key" json:"key"`
	Fields   []Field   `cfg:"fields" json:"fields"`
	Comment  string    `cfg:"comment" json:"comment,omitempty"`
	Override *Override `cfg:"override" json:"override,omitempty"`
}

func (t *TableSchema) clone() *TableSchema {
	c := *t
	c.Key = append(Key(nil), t.Key...)
	c.Fields = append([]Field(nil), t.Fields...)
	if t.Override != nil {
		o := *t.Override
		o.WriteKey = append(Key(nil), t.Override.WriteKey...)
		c.Override = &o
	}
	return &c
}

type CatalogOptions struct {
	Tables []TableSchema `cfg:"tables" validate:"dive"`
}

// Catalog 启动时加载的静态表定义，加载之后只读
type Catalog struct {
	tables []TableSchema
	index  map[string]int
}

func NewCatalogWithOptions(options *CatalogOptions) (*Catalog, error) {
	if options == nil {
		return NewCatalog(nil)
	}
	return NewCatalog(options.Tables)
}

// NewCatalog 表名大小写不敏感，不能重复
func NewCatalog(tables []TableSchema) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(tables))}
	for i := range tables {
		name := strings.TrimSpace(tables[i].Name)
		if name == "" {
			return nil, errors.Errorf("table %d has no name", i)
		}
		lower := strings.ToLower(name)
		if _, ok := c.index[lower]; ok {
			return nil, errors.Errorf("duplicate table %s", name)
		}
		c.index[lower] = len(c.tables)
		c.tables = append(c.tables, *tables[i].clone())
	}
	return c, nil
}

// LoadCatalog 从 json/yaml/toml 文件加载，文件的 tables 字段为表定义列表
func LoadCatalog(path string) (*Catalog, error) {
	conf, err := cfg.NewConfig(path)
	if err != nil {
		return nil, errors.WithMessage(err, "load catalog failed")
	}
	var options CatalogOptions
	if err := conf.ConvertTo(&options); err != nil {
		return nil, errors.WithMessagef(err, "parse catalog %s failed", path)
	}
	return NewCatalogWithOptions(&options)
}

// Lookup 返回表定义的副本
func (c *Catalog) Lookup(name string) (*TableSchema, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return c.tables[i].clone(), true
}

func (c *Catalog) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[strings.ToLower(name)]
	return ok
}

// Tables 按定义顺序返回所有表定义的副本
func (c *Catalog) Tables() []TableSchema {
	if c == nil {
		return nil
	}
	out := make([]TableSchema, 0, len(c.tables))
	for i := range c.tables {
		out = append(out, *c.tables[i].clone())
	}
	return out
}
