package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadFile reads and resolves the configuration document at path. If a
// file named path + ".env" exists (e.g. "guardia.json.env"), its values
// are loaded into the process environment first (missing file is not an
// error), mirroring the
// teacher's env-fallback CLI convention.
func LoadFile(path string) (ResolvedConfig, error) {
	envPath := path + ".env"
	if _, err := os.Stat(envPath); err == nil {
		if loadErr := godotenv.Load(envPath); loadErr != nil {
			return ResolvedConfig{}, fmt.Errorf("loading %s: %w", envPath, loadErr)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ResolvedConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return Resolve(doc)
}
