package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alterlabs/alter/internal/credential"
	"github.com/alterlabs/alter/internal/runtime"
	"github.com/alterlabs/alter/internal/store"
)

// alterDir is where the database and workspace live. Defaults to ~/.alter,
// overridable with --data-dir.
func alterDir() string {
	if dataDir != "" {
		return dataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".alter")
}

func dbPath() string {
	return filepath.Join(alterDir(), "alter.db")
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(alterDir(), 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return store.New(dbPath())
}

// providerCreds resolves the API key and base URL for a provider, preferring
// the environment over encrypted values in the store.
func providerCreds(name string) (apiKey, baseURL string) {
	if env := apiKeyEnv(name); env != "" {
		apiKey = os.Getenv(env)
	}

	s, err := openStore()
	if err != nil {
		return apiKey, ""
	}
	defer s.Close()

	baseURL, _ = s.GetConfig(name + ".base_url")
	if apiKey != "" {
		return apiKey, baseURL
	}

	stored, err := s.GetConfig(name + ".api_key")
	if err != nil || stored == "" {
		return "", baseURL
	}
	mgr, err := credential.NewManager()
	if err != nil {
		return "", baseURL
	}
	apiKey, _ = mgr.Decrypt(stored)
	return apiKey, baseURL
}

func apiKeyEnv(name string) string {
	switch name {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// storeAPIKey encrypts a key and saves it under <provider>.api_key.
func storeAPIKey(providerName, key string) error {
	mgr, err := credential.NewManager()
	if err != nil {
		return err
	}
	encrypted, err := mgr.Encrypt(key)
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SetConfig(providerName+".api_key", encrypted)
}

func buildRuntime(ctx context.Context) (*runtime.Runtime, error) {
	wd := workdir
	if wd == "" {
		wd = filepath.Join(alterDir(), "workspace")
	}
	apiKey, baseURL := providerCreds(providerName)

	return runtime.New(ctx, runtime.Config{
		DBPath:       dbPath(),
		Workdir:      wd,
		Verbose:      verbose,
		JSONLogs:     jsonLogs,
		ProviderName: providerName,
		APIKey:       apiKey,
		BaseURL:      baseURL,
		Model:        modelName,
		SmallModel:   smallModel,
	})
}
