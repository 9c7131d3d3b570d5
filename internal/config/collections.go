package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ogcapi/featureserv/internal/provider"
)

// Collection declares one feature collection served over HTTP.
type Collection struct {
	ID          string         `mapstructure:"id"`
	Title       string         `mapstructure:"title"`
	Description string         `mapstructure:"description"` // markdown
	Keywords    []string       `mapstructure:"keywords"`
	Provider    ProviderConfig `mapstructure:"provider"`
}

// ProviderConfig is the provider block of a collection declaration.
type ProviderConfig struct {
	Name          string `mapstructure:"name"`
	Data          string `mapstructure:"data"`
	Collection    string `mapstructure:"collection"`
	IDField       string `mapstructure:"id_field"`
	DatetimeField string `mapstructure:"datetime_field"`
}

// Definition converts the config block into the provider definition.
func (p ProviderConfig) Definition() provider.Definition {
	return provider.Definition{
		Name:          p.Name,
		Data:          p.Data,
		Collection:    p.Collection,
		IDField:       p.IDField,
		DatetimeField: p.DatetimeField,
	}
}

// LoadCollections reads and validates the collections file (YAML).
func LoadCollections(path string) ([]Collection, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read collections config %s: %w", path, err)
	}

	var collections []Collection
	if err := v.UnmarshalKey("collections", &collections); err != nil {
		return nil, fmt.Errorf("parse collections config %s: %w", path, err)
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("collections config %s declares no collections", path)
	}

	seen := make(map[string]bool, len(collections))
	for i, c := range collections {
		if c.ID == "" {
			return nil, fmt.Errorf("collection %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate collection id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Provider.Name == "" {
			return nil, fmt.Errorf("collection %q has no provider name", c.ID)
		}
		if c.Provider.Data == "" {
			return nil, fmt.Errorf("collection %q has no provider data source", c.ID)
		}
	}
	return collections, nil
}
