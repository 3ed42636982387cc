package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	mcpMode  bool
	manifest string
	results  string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCP switches the application into stdio MCP server mode.
func WithMCP() Option {
	return func(a *application) {
		a.mcpMode = true
	}
}

// WithBatch switches the application into one-shot batch mode: process
// the TSV manifest, write results to the given path (or stdout when
// empty), and exit.
func WithBatch(manifest, results string) Option {
	return func(a *application) {
		a.manifest = manifest
		a.results = results
	}
}
