package agentpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFindAvailableAgent_CapabilityMatch(t *testing.T) {
	p := New(false)
	p.Register("dev-1", FullStackDeveloper, []string{"implement"}, nil)
	p.Register("dev-2", FullStackDeveloper, []string{"api"}, nil)

	agent := p.FindAvailableAgent("api", nil, CapabilityMatch)
	if agent == nil || agent.ID != "dev-2" {
		t.Fatalf("expected dev-2 to be selected via capability match, got %v", agent)
	}
}

func TestFindAvailableAgent_MappingResolvesAgentType(t *testing.T) {
	p := New(false)
	p.Register("qa-1", QAEngineer, []string{"test"}, nil)

	agent := p.FindAvailableAgent("review", nil, CapabilityMatch)
	if agent == nil || agent.Type != QAEngineer {
		t.Fatalf("expected review to map to QA_ENGINEER, got %v", agent)
	}
}

func TestFindAvailableAgent_NoMatchWithoutFallback(t *testing.T) {
	p := New(false)
	p.Register("qa-1", QAEngineer, nil, nil)

	agent := p.FindAvailableAgent("implement", nil, CapabilityMatch)
	if agent != nil {
		t.Fatalf("expected nil when no FULL_STACK_DEVELOPER is registered and fallback disabled")
	}
}

func TestFindAvailableAgent_FallbackReturnsAnyIdle(t *testing.T) {
	p := New(true)
	p.Register("qa-1", QAEngineer, nil, nil)

	agent := p.FindAvailableAgent("implement", nil, CapabilityMatch)
	if agent == nil {
		t.Fatalf("expected fallback to return the idle QA agent")
	}
}

func TestAssignTask_SuccessReturnsToIdleWithHistory(t *testing.T) {
	p := New(false)
	p.Register("dev-1", FullStackDeveloper, []string{"implement"}, func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		return "built", nil
	})

	result, err := p.AssignTask(context.Background(), "implement", nil, "", time.Second, CapabilityMatch)
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if result != "built" {
		t.Fatalf("result = %v, want built", result)
	}

	agent, _ := p.Get("dev-1")
	if agent.Status != StatusIdle {
		t.Fatalf("agent status = %s, want IDLE after success", agent.Status)
	}
	if len(agent.CompletedTasks) != 1 {
		t.Fatalf("CompletedTasks = %v, want 1 entry", agent.CompletedTasks)
	}
}

func TestAssignTask_TimeoutResetsToIdleViaError(t *testing.T) {
	p := New(false)
	p.Register("dev-1", FullStackDeveloper, []string{"implement"}, func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := p.AssignTask(context.Background(), "implement", nil, "", 20*time.Millisecond, CapabilityMatch)
	if err == nil {
		t.Fatalf("expected timeout error")
	}

	agent, _ := p.Get("dev-1")
	if agent.Status != StatusIdle {
		t.Fatalf("agent status = %s, want IDLE after timeout reset", agent.Status)
	}
}

func TestAssignTask_ExecutorErrorPropagates(t *testing.T) {
	p := New(false)
	wantErr := errors.New("boom")
	p.Register("dev-1", FullStackDeveloper, []string{"implement"}, func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		return nil, wantErr
	})

	_, err := p.AssignTask(context.Background(), "implement", nil, "", time.Second, CapabilityMatch)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
