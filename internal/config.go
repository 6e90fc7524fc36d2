package internal

import (
	"fmt"

	"github.com/hbomb79/Shiori/internal/database"
	"github.com/hbomb79/Shiori/internal/sync"
	"github.com/ilyakaznacheev/cleanenv"
)

// ShioriConfig is the struct used to contain the
// various user config supplied by file, or
// manually inside the code.
type ShioriConfig struct {
	Sync     sync.Config             `yaml:"sync"`
	Database database.DatabaseConfig `yaml:"database" env-required:"true"`
}

// Loads a configuration file formatted in YAML in to a
// ShioriConfig struct ready to be passed to the daemon
func (config *ShioriConfig) LoadFromFile(configPath string) error {
	err := cleanenv.ReadConfig(configPath, config)
	if err != nil {
		return fmt.Errorf("failed to load configuration for ShioriConfig - %v", err.Error())
	}

	return nil
}
