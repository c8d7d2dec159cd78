package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
)

// DBTracingConfig holds gorm tracing configuration
type DBTracingConfig struct {
	Enabled    bool
	DBName     string
	LogFullSQL bool
}

// NewDBTracingPlugin returns the otelgorm plugin, or nil when tracing is disabled.
// Query arguments are left out of spans unless LogFullSQL is set.
func NewDBTracingPlugin(cfg DBTracingConfig) gorm.Plugin {
	if !cfg.Enabled {
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	return otelgorm.NewPlugin(opts...)
}
