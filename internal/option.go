package internal

// application carries the state assembled from run options before Run
// builds the component graph.
type application struct {
	config *Config
}

// Option customizes how Run assembles the application.
type Option func(*application)

// WithConfig supplies the validated configuration Run should use.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
