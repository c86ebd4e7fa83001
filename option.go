package vaultflow

import (
	"github.com/viant/afs"

	"github.com/vaultflow/vaultflow/service/approval"
	"github.com/vaultflow/vaultflow/service/drafter"
	"github.com/vaultflow/vaultflow/service/event"
	"github.com/vaultflow/vaultflow/service/handler"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
	"github.com/vaultflow/vaultflow/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customizes service assembly.
type Option func(s *Service)

// WithFileSystem sets the afs service backing the vault, e.g. mem:// in
// tests.
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithVault sets a pre-built vault store.
func WithVault(vault *storefs.Vault) Option {
	return func(s *Service) { s.vault = vault }
}

// WithApprovalService sets the approval gate implementation.
func WithApprovalService(svc approval.Service) Option {
	return func(s *Service) { s.gate = svc }
}

// WithDrafter sets the content drafter used by the content handler.
func WithDrafter(svc drafter.Service) Option {
	return func(s *Service) { s.drafter = svc }
}

// WithRecorder sets the activity recorder feeding the dashboard.
func WithRecorder(recorder *event.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithHandlers registers additional task handlers alongside the defaults.
func WithHandlers(handlers ...handler.Handler) Option {
	return func(s *Service) {
		s.extraHandlers = append(s.extraHandlers, handlers...)
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. Safe to call multiple times, the first successful
// initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, for example OTLP, Jaeger or Zipkin. Safe to call multiple
// times, the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
