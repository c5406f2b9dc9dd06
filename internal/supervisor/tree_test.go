// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guardline/guardline/internal/logging"
)

type stubService struct {
	name    string
	started chan struct{}
}

func (s *stubService) Serve(ctx context.Context) error {
	select {
	case <-s.started:
	default:
		close(s.started)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.FailureBackoff != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTreeZeroConfigGetsDefaults(t *testing.T) {
	tree, err := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	if tree.config.FailureThreshold != 5.0 {
		t.Fatalf("threshold = %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Fatalf("shutdown timeout = %v", tree.config.ShutdownTimeout)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor missing")
	}
}

func TestTreeRunsAndStopsServices(t *testing.T) {
	tree, err := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	engineSvc := &stubService{name: "stub-engine", started: make(chan struct{})}
	apiSvc := &stubService{name: "stub-api", started: make(chan struct{})}
	tree.AddEngineService(engineSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*stubService{engineSvc, apiSvc} {
		select {
		case <-svc.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s never started", svc.name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("tree exited with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}
