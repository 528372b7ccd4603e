package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// secrets is the content of secrets.json, kept out of the main config file
// so `config show` never prints credential material.
type secrets struct {
	APIToken         string `json:"api_token"`
	OpenRouterAPIKey string `json:"openrouter_api_key,omitempty"`
}

func secretsFilePath() string {
	return filepath.Join(configDir(), "secrets.json")
}

func loadSecretsFile() secrets {
	var sec secrets
	data, err := os.ReadFile(secretsFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read secrets file: %v\n", err)
		}
		return sec
	}
	if err := json.Unmarshal(data, &sec); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse secrets file: %v\n", err)
	}
	return sec
}

func saveSecretsFile(sec secrets) error {
	if err := os.MkdirAll(configDir(), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(sec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(secretsFilePath(), data, 0o600)
}

// EnsureAPIToken returns the bearer token HTTP clients must present,
// generating and persisting one on first start.
func EnsureAPIToken() (string, error) {
	sec := loadSecretsFile()
	if sec.APIToken != "" {
		return sec.APIToken, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	sec.APIToken = hex.EncodeToString(buf)

	if err := saveSecretsFile(sec); err != nil {
		return "", fmt.Errorf("saving api token: %w", err)
	}
	return sec.APIToken, nil
}

// APIToken returns the stored bearer token, or empty when none exists yet.
func APIToken() string {
	return loadSecretsFile().APIToken
}
