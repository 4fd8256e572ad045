// internal/tracing/tracing.go
package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

// ServiceName is reported to jaeger.
const ServiceName = "dashsync"

type Config struct {
	Host string
	Port int
}

// Enabled reports whether an agent address is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// Init installs a jaeger tracer as the global opentracing tracer. With no
// agent configured the global no-op tracer is left in place. The returned
// func flushes and closes the tracer.
func Init(conf Config, logger *zap.Logger) (opentracing.Tracer, func(), error) {
	if !conf.Enabled() {
		return opentracing.NoopTracer{}, func() {}, nil
	}

	cfg := &jCfg.Configuration{
		ServiceName: ServiceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(jCfg.Metrics(metrics.NullFactory))
	if err != nil {
		return nil, nil, fmt.Errorf("init jaeger tracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	logger.Info("Tracing enabled", zap.String("agent", cfg.Reporter.LocalAgentHostPort))

	return tracer, closeFunc(closer, logger), nil
}

func closeFunc(closer io.Closer, logger *zap.Logger) func() {
	return func() {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing jaeger tracer", zap.Error(err))
		}
	}
}
