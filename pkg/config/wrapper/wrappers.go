package wrapper

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/dibs-shares/shares-server/pkg/config"
)

// ErrUnsupportedConversion indicates the wrapper can't convert from the
// source's value type
var ErrUnsupportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// converter turns a raw source value into T, returning
// ErrUnsupportedConversion for unknown types
type converter[T any] func(raw interface{}) (T, error)

type typed[T any] struct {
	source       config.Config
	defaultValue T
	convert      converter[T]

	stateMu   sync.RWMutex
	lastValue T
}

func newTyped[T any](source config.Config, defaultValue T, convert converter[T]) *typed[T] {
	return &typed[T]{
		source:       source,
		defaultValue: defaultValue,
		convert:      convert,
		lastValue:    defaultValue,
	}
}

// GetSafe gets the value and propagates any errors. The last known value is
// returned alongside errors.
func (c *typed[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := c.source.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if err == config.ErrNoValue {
		c.set(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	value, err := c.convert(raw)
	if err != nil {
		return lastValue, err
	}

	c.set(value)
	return value, nil
}

func (c *typed[T]) Get(ctx context.Context) T {
	value, _ := c.GetSafe(ctx)
	return value
}

func (c *typed[T]) Shutdown() {
	c.source.Shutdown()
}

func (c *typed[T]) set(value T) {
	c.stateMu.Lock()
	c.lastValue = value
	c.stateMu.Unlock()
}

// NewStringConfig wraps source as a string config. Sources may yield string
// or []byte values.
func NewStringConfig(source config.Config, defaultValue string) config.String {
	return newTyped(source, defaultValue, func(raw interface{}) (string, error) {
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return "", ErrUnsupportedConversion
		}
	})
}

// NewUint64Config wraps source as a uint64 config. Sources may yield uint64,
// uint or base 10 []byte values.
func NewUint64Config(source config.Config, defaultValue uint64) config.Uint64 {
	return newTyped(source, defaultValue, func(raw interface{}) (uint64, error) {
		switch v := raw.(type) {
		case uint64:
			return v, nil
		case uint:
			return uint64(v), nil
		case []byte:
			parsed, err := strconv.ParseUint(string(v), 10, 64)
			if err != nil {
				return 0, errors.Wrap(err, "invalid uint64 config value")
			}
			return parsed, nil
		default:
			return 0, ErrUnsupportedConversion
		}
	})
}
