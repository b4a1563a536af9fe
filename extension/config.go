package extension

import "github.com/xraph/vectorflow"

// Config holds configuration for the vectorflow Forge extension.
type Config struct {
	// DisableMigrate disables store migrations on start.
	DisableMigrate bool `default:"false" json:"disable_migrate"`

	// RequireConfig makes Register fail when no "extensions.vectorflow"
	// or "vectorflow" key exists in the app's configuration.
	RequireConfig bool `json:"-"`

	// VectorFlow holds the core configuration.
	VectorFlow vectorflow.Config `json:"vectorflow"`
}

// DefaultConfig returns the extension defaults.
func DefaultConfig() Config {
	return Config{VectorFlow: vectorflow.DefaultConfig()}
}
