package util

import (
	"strings"

	"github.com/spf13/viper"
)

// SetKeyValue sets a config value from an environment style key such as
// PJ_DATABASE_CONNECTION_STRING. Since both nesting and key names use
// underscores the first split that names an existing key wins.
func SetKeyValue(vi *viper.Viper, key string, value interface{}) bool {
	key = strings.TrimPrefix(key, "PJ_")

	uc := strings.Count(key, "_")
	k := strings.ToLower(key)

	if vi.Get(k) != nil {
		vi.Set(k, value)
		return true
	}

	for i := 0; i < uc; i++ {
		k = strings.Replace(k, "_", ".", 1)
		if vi.Get(k) != nil {
			vi.Set(k, value)
			return true
		}
	}

	return false
}
