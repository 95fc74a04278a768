// internal/config/logger.go
// Loads the JSON logger configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/erilali/turing/internal/logger"
)

// LoadLoggerConfig loads the logger configuration from a JSON file. A
// missing file yields the defaults.
func LoadLoggerConfig(filePath string) (logger.LogConfig, error) {
	config := logger.DefaultLogConfig()
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}
	defer file.Close()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return logger.DefaultLogConfig(), fmt.Errorf("decode %s: %w", filePath, err)
	}
	return config, nil
}
