package storage

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/restsql/ref"
)

var (
	durationType    = reflect.TypeOf(time.Duration(0))
	timeType        = reflect.TypeOf(time.Time{})
	typeOptionsType = reflect.TypeOf(ref.TypeOptions{})
)

// MapStorage 基于 map 和 slice 的存储实现
// 结构体字段名优先取 cfg tag，其次 json tag，转换后对零值字段应用 def tag
type MapStorage struct {
	data any
}

func NewMapStorage(data any) *MapStorage {
	return &MapStorage{data: data}
}

// Data 获取存储的原始数据
func (ms *MapStorage) Data() any {
	return ms.data
}

func (ms *MapStorage) Sub(key string) Storage {
	if key == "" {
		return ms
	}

	current := ms.data
	for _, k := range parseKey(key) {
		current = valueByKey(current, k)
		if current == nil {
			break
		}
	}
	return NewMapStorage(current)
}

func (ms *MapStorage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("object must be a non-nil pointer, got %T", object)
	}
	if err := convertValue(ms.data, rv.Elem()); err != nil {
		return err
	}
	return SetDefaults(object)
}

func parseKey(key string) []string {
	var keys []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			keys = append(keys, current.String())
			current.Reset()
		}
	}

	for _, c := range key {
		switch c {
		case '.', '[', ']':
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return keys
}

func valueByKey(data any, key string) any {
	rv := reflect.ValueOf(data)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if fmt.Sprint(k.Interface()) == key {
				return rv.MapIndex(k).Interface()
			}
		}
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil
		}
		return rv.Index(index).Interface()
	}
	return nil
}

func convertValue(src any, dst reflect.Value) error {
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		return nil
	}
	for sv.Kind() == reflect.Ptr {
		if sv.IsNil() {
			return nil
		}
		sv = sv.Elem()
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	switch dst.Type() {
	case durationType:
		return convertDuration(sv, dst)
	case timeType:
		return convertTime(sv, dst)
	case typeOptionsType:
		return convertTypeOptions(sv, dst)
	}

	if sv.Type().AssignableTo(dst.Type()) && dst.Kind() != reflect.Map && dst.Kind() != reflect.Slice {
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Map:
		return convertMap(sv, dst)
	case reflect.Slice:
		return convertSlice(sv, dst)
	case reflect.Struct:
		return convertStruct(sv, dst)
	case reflect.Interface:
		if sv.Type().Implements(dst.Type()) {
			dst.Set(sv)
			return nil
		}
	case reflect.String:
		if sv.Kind() != reflect.String {
			dst.SetString(fmt.Sprint(sv.Interface()))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			f, err := strconv.ParseFloat(sv.String(), 64)
			if err != nil {
				return fmt.Errorf("cannot convert %q to %v", sv.String(), dst.Type())
			}
			sv = reflect.ValueOf(f)
		}
	case reflect.Bool:
		if sv.Kind() == reflect.String {
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return fmt.Errorf("cannot convert %q to bool", sv.String())
			}
			dst.SetBool(b)
			return nil
		}
	}

	if sv.Type().ConvertibleTo(dst.Type()) && (sv.Kind() != reflect.String || dst.Kind() == reflect.String) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
}

// convertTypeOptions Options 保留为 MapStorage，由 ref 在构造时按参数类型转换
func convertTypeOptions(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return fmt.Errorf("type options must be a map, got %v", sv.Type())
	}
	options := ref.TypeOptions{}
	for _, k := range sv.MapKeys() {
		v := sv.MapIndex(k).Interface()
		switch fmt.Sprint(k.Interface()) {
		case "namespace":
			options.Namespace = fmt.Sprint(v)
		case "type":
			options.Type = fmt.Sprint(v)
		case "options":
			if v != nil {
				options.Options = NewValidateStorage(NewMapStorage(v))
			}
		}
	}
	dst.Set(reflect.ValueOf(options))
	return nil
}

func convertDuration(sv reflect.Value, dst reflect.Value) error {
	switch sv.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(sv.String())
		if err != nil {
			return fmt.Errorf("failed to parse duration %q: %w", sv.String(), err)
		}
		dst.SetInt(int64(d))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(sv.Int())
	case reflect.Float32, reflect.Float64:
		// 浮点数按秒处理
		dst.SetInt(int64(sv.Float() * float64(time.Second)))
	default:
		return fmt.Errorf("cannot convert %v to time.Duration", sv.Type())
	}
	return nil
}

func convertTime(sv reflect.Value, dst reflect.Value) error {
	if t, ok := sv.Interface().(time.Time); ok {
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	if sv.Kind() != reflect.String {
		return fmt.Errorf("cannot convert %v to time.Time", sv.Type())
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, sv.String()); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("failed to parse time %q", sv.String())
}

func convertMap(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return fmt.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), sv.Len()))
	}
	keyType := dst.Type().Key()
	for _, k := range sv.MapKeys() {
		key := reflect.New(keyType).Elem()
		if err := convertValue(k.Interface(), key); err != nil {
			return err
		}
		value := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.MapIndex(k).Interface(), value); err != nil {
			return fmt.Errorf("%v: %w", k.Interface(), err)
		}
		dst.SetMapIndex(key, value)
	}
	return nil
}

func convertSlice(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		// 单个值视为只有一个元素的列表
		item := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(sv.Interface(), item); err != nil {
			return err
		}
		dst.Set(reflect.Append(reflect.MakeSlice(dst.Type(), 0, 1), item))
		return nil
	}

	out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := convertValue(sv.Index(i).Interface(), out.Index(i)); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	dst.Set(out)
	return nil
}

func convertStruct(sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return fmt.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
	}

	values := make(map[string]reflect.Value, sv.Len())
	for _, k := range sv.MapKeys() {
		values[fmt.Sprint(k.Interface())] = sv.MapIndex(k)
	}

	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		field := dt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := convertValue(v.Interface(), dst.Field(i)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml"} {
		if name := strings.Split(field.Tag.Get(tag), ",")[0]; name != "" {
			return name
		}
	}
	return field.Name
}
