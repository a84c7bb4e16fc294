package decoder

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hatlonely/restsql/cfg/storage"
)

type TomlDecoder struct{}

func NewTomlDecoder() *TomlDecoder {
	return &TomlDecoder{}
}

func (t *TomlDecoder) Decode(data []byte) (storage.Storage, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode TOML: %w", err)
	}
	return storage.NewMapStorage(result), nil
}
