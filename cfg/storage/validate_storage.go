package storage

import (
	"github.com/hatlonely/restsql/cfg/validator"
	"github.com/pkg/errors"
)

// ValidateStorage 转换之后执行 validate tag 校验
type ValidateStorage struct {
	storage Storage
}

func NewValidateStorage(storage Storage) *ValidateStorage {
	return &ValidateStorage{storage: storage}
}

func (vs *ValidateStorage) Sub(key string) Storage {
	if vs.storage == nil {
		return nil
	}
	return NewValidateStorage(vs.storage.Sub(key))
}

func (vs *ValidateStorage) ConvertTo(object any) error {
	if vs.storage == nil {
		return nil
	}
	if err := vs.storage.ConvertTo(object); err != nil {
		return err
	}
	if err := validator.ValidateStruct(object); err != nil {
		return errors.WithMessage(err, "validation failed")
	}
	return nil
}
