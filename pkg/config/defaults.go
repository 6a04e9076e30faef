package config

const (
	defaultStorageDriver = "sqlite"
	defaultSQLiteFile    = "forky.db"

	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultModelProvider = "ollama"
	defaultModelBaseURL  = "http://localhost:11434"
	defaultModelName     = "llama3.2"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "forky.graph.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
//
// The default sqlite path is left empty here; the serve command resolves it
// to <dotdir>/forky.db so the database lands next to the config file.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Model: ModelConfig{
			Provider: defaultModelProvider,
			Model:    defaultModelName,
			BaseURL:  defaultModelBaseURL,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
