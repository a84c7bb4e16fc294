package log

import (
	"fmt"

	"github.com/hatlonely/restsql/log/logger"
	"github.com/hatlonely/restsql/ref"
)

type Logger = logger.Logger

var defaultLogger logger.Logger

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

// Default 向 stdout 输出 text 格式的默认日志器
func Default() Logger {
	return defaultLogger
}

// NewLoggerWithOptions 通过 ref 构造日志器，options 为 nil 时返回默认日志器
// Type 为空时按 SLog 处理，Options 直接作为 SLogOptions
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil {
		return Default(), nil
	}

	if options.Type == "" {
		obj, err := ref.NewT[*logger.SLog](options.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		return obj, nil
	}

	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	l, ok := obj.(Logger)
	if !ok {
		return nil, fmt.Errorf("%T does not implement Logger interface", obj)
	}
	return l, nil
}
