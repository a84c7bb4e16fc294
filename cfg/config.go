package cfg

import (
	"os"

	"github.com/hatlonely/restsql/cfg/decoder"
	"github.com/hatlonely/restsql/cfg/storage"
	"github.com/pkg/errors"
)

// Config 只读配置，转换结构体时应用 def 默认值并执行 validate 校验
type Config struct {
	storage storage.Storage
}

// NewConfig 读取配置文件，按扩展名（json/yaml/yml/toml）选择解码器
func NewConfig(path string) (*Config, error) {
	d, err := decoder.NewDecoderByExt(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s failed", path)
	}
	s, err := d.Decode(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode config file %s failed", path)
	}
	return NewConfigWithStorage(s), nil
}

func NewConfigWithStorage(s storage.Storage) *Config {
	if _, ok := s.(*storage.ValidateStorage); !ok {
		s = storage.NewValidateStorage(s)
	}
	return &Config{storage: s}
}

// Sub 获取子配置，key 为空时返回自身
func (c *Config) Sub(key string) *Config {
	if key == "" {
		return c
	}
	return &Config{storage: c.storage.Sub(key)}
}

func (c *Config) ConvertTo(object any) error {
	return c.storage.ConvertTo(object)
}
