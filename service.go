package vaultflow

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/vaultflow/vaultflow/service/approval"
	approvalfs "github.com/vaultflow/vaultflow/service/approval/fs"
	"github.com/vaultflow/vaultflow/service/archiver"
	"github.com/vaultflow/vaultflow/service/classifier"
	"github.com/vaultflow/vaultflow/service/dashboard"
	"github.com/vaultflow/vaultflow/service/drafter"
	"github.com/vaultflow/vaultflow/service/drafter/static"
	"github.com/vaultflow/vaultflow/service/event"
	"github.com/vaultflow/vaultflow/service/handler"
	"github.com/vaultflow/vaultflow/service/inbox"
	"github.com/vaultflow/vaultflow/service/router"
	"github.com/vaultflow/vaultflow/service/scheduler"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
	"github.com/vaultflow/vaultflow/service/watcher"
)

// Service is the high-level façade that assembles the engine: the vault
// store, the approval gate, the handler registry and the three producers
// and consumers wired around them.
type Service struct {
	runtime       *Runtime
	config        *Config
	fs            afs.Service
	vault         *storefs.Vault
	gate          approval.Service
	drafter       drafter.Service
	registry      *handler.Registry
	recorder      *event.Recorder
	extraHandlers []handler.Handler
}

func (s *Service) init(ctx context.Context, options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if err := s.ensureBaseSetup(ctx); err != nil {
		return err
	}
	if err := s.registerHandlers(); err != nil {
		return err
	}

	cls := classifier.New(classifier.WithConfig(s.config.Classifier))
	rtr := router.New(s.registry)
	arch := archiver.New(s.vault, s.config.Agent)
	dash := dashboard.New(s.vault, s.recorder, s.config.Agent)

	engine, err := watcher.New(s.config.Watcher, s.vault, cls, rtr, s.gate, arch, dash, s.recorder, s.config.Agent)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(s.config.Scheduler, s.vault, s.config.Agent)
	if err != nil {
		return err
	}
	s.runtime.watcher = engine
	s.runtime.inbox = inbox.New(s.config.Inbox, s.fs, s.vault, s.config.Agent)
	s.runtime.scheduler = sched
	s.runtime.vault = s.vault
	s.runtime.gate = s.gate
	s.runtime.dashboard = dash
	s.runtime.recorder = s.recorder
	return nil
}

func (s *Service) ensureBaseSetup(ctx context.Context) error {
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.recorder == nil {
		s.recorder = event.NewRecorder()
	}
	if s.vault == nil {
		vault, err := storefs.New(ctx, s.fs, s.config.BaseURL)
		if err != nil {
			return err
		}
		s.vault = vault
	}
	if s.gate == nil {
		approvalsURL := url.Join(s.config.BaseURL, string(storefs.FolderApprovals))
		gate, err := approvalfs.New(ctx, s.fs, approvalsURL, s.config.Agent)
		if err != nil {
			return err
		}
		s.gate = gate
	}
	if s.drafter == nil {
		s.drafter = static.New()
	}
	return nil
}

func (s *Service) registerHandlers() error {
	s.registry = handler.NewRegistry()
	defaults := []handler.Handler{
		handler.NewContent(s.drafter),
		handler.NewPlan(),
		handler.NewBriefing(pendingLister{vault: s.vault}),
		handler.NewInvoice(),
		handler.NewFileDrop(),
	}
	for _, h := range append(defaults, s.extraHandlers...) {
		if err := s.registry.Register(h); err != nil {
			return fmt.Errorf("failed to register handler: %w", err)
		}
	}
	return nil
}

// Runtime returns the assembled runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Vault exposes the underlying store for embedding applications and tests.
func (s *Service) Vault() *storefs.Vault {
	return s.vault
}

// Gate exposes the approval gate.
func (s *Service) Gate() approval.Service {
	return s.gate
}

// New assembles an engine rooted at config.BaseURL. The folder layout is
// created on first use; an existing vault is picked up as-is, which makes a
// restart a pure re-read of on-disk state.
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Agent == "" {
		config.Agent = "vaultflow"
	}
	ret := &Service{runtime: &Runtime{}, config: config}
	if err := ret.init(ctx, options); err != nil {
		return nil, err
	}
	return ret, nil
}
