package env

import (
	"context"
	"os"
	"strings"

	"github.com/dibs-shares/shares-server/pkg/config"
	"github.com/dibs-shares/shares-server/pkg/config/wrapper"
)

type conf struct {
	val string
}

// NewConfig reads key from the environment once, at creation
func NewConfig(key string) config.Config {
	return &conf{
		val: os.Getenv(strings.ToUpper(key)),
	}
}

// Get implements config.Config.Get
func (c *conf) Get(_ context.Context) (interface{}, error) {
	if len(c.val) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(c.val), nil
}

// Shutdown implements config.Config.Shutdown
func (c *conf) Shutdown() {
}

func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}
