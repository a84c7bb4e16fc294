package decoder

import (
	"path/filepath"
	"strings"

	"github.com/hatlonely/restsql/cfg/storage"
	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[JsonDecoder](NewJsonDecoder)
	ref.MustRegisterT[YamlDecoder](NewYamlDecoder)
	ref.MustRegisterT[TomlDecoder](NewTomlDecoder)
}

// Decoder 把原始配置数据解码为存储对象
type Decoder interface {
	Decode(data []byte) (storage.Storage, error)
}

func NewDecoderWithOptions(options *ref.TypeOptions) (Decoder, error) {
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	d, ok := obj.(Decoder)
	if !ok {
		return nil, errors.Errorf("%T is not a Decoder", obj)
	}
	return d, nil
}

// NewDecoderByExt 根据文件扩展名选择解码器
func NewDecoderByExt(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJsonDecoder(), nil
	case ".yaml", ".yml":
		return NewYamlDecoder(), nil
	case ".toml":
		return NewTomlDecoder(), nil
	default:
		return nil, errors.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}
