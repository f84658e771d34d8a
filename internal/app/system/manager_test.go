package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name     string
	startErr error
	log      *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.log = append(*s.log, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	ctx := context.Background()
	var log []string

	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("unexpected log %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("step %d: want %s, got %s", i, want[i], log[i])
		}
	}
}

func TestManagerRejectsDuplicates(t *testing.T) {
	var log []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "dup", log: &log}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "dup", log: &log}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	ctx := context.Background()
	var log []string

	m := NewManager()
	_ = m.Register(&recordingService{name: "ok", log: &log})
	_ = m.Register(&recordingService{name: "broken", log: &log, startErr: errors.New("boom")})

	if err := m.Start(ctx); err == nil {
		t.Fatal("expected start to fail")
	}

	want := []string{"start:ok", "start:broken", "stop:ok"}
	if len(log) != len(want) {
		t.Fatalf("unexpected log %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("step %d: want %s, got %s", i, want[i], log[i])
		}
	}

	if err := m.Register(&recordingService{name: "late", log: &log}); err != nil {
		t.Fatalf("register after failed start: %v", err)
	}
}

func TestNoopService(t *testing.T) {
	svc := NoopService{ServiceName: "noop"}
	if svc.Name() != "noop" {
		t.Fatalf("unexpected name %s", svc.Name())
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
