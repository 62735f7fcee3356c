package config

import (
	"fmt"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
)

// OpenPreferenceStore opens the backend selected by Store.Backend.
func (c *Config) OpenPreferenceStore() (domain.PreferenceStore, error) {
	switch c.Store.Backend {
	case BackendSQLCipher:
		store, err := infra.OpenEncryptedPreferenceStore(c.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendFile:
		store, err := infra.NewFilePreferenceStore(c.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := infra.NewRedisPreferenceStore(c.Store.RedisURL, c.Store.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
}
