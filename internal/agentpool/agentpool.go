// Package agentpool implements the typed agent registry, task-type routing,
// and assignment strategies (C11). The teacher has no typed-worker
// concept — its "agents" are remote execution nodes tracked by
// NodeHealth/CompositeScore — so the IDLE/BUSY/ERROR liveness states here
// are grounded on that heartbeat-driven pattern
// (control_plane/scheduler/types.go's NodeHealth,
// control_plane/coordination/agent_monitor.go's heartbeat loop) while the
// capability-matching/strategy logic itself is new, built directly from
// spec.md's own contract.
package agentpool

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// AgentType enumerates the typed roles spec.md names.
type AgentType string

const (
	ProjectManager    AgentType = "PROJECT_MANAGER"
	ProductManager    AgentType = "PRODUCT_MANAGER"
	Architect         AgentType = "ARCHITECT"
	FullStackDeveloper AgentType = "FULL_STACK_DEVELOPER"
	QAEngineer        AgentType = "QA_ENGINEER"
	DatabaseExpert    AgentType = "DATABASE_EXPERT"
)

// AgentStatus is an agent's liveness/availability state.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "IDLE"
	StatusBusy    AgentStatus = "BUSY"
	StatusOffline AgentStatus = "OFFLINE"
	StatusError   AgentStatus = "ERROR"
)

// Strategy selects among multiple candidate IDLE agents of the chosen type.
type Strategy string

const (
	CapabilityMatch Strategy = "CAPABILITY_MATCH"
	LeastLoaded     Strategy = "LEAST_LOADED"
	RoundRobin      Strategy = "ROUND_ROBIN"
	Random          Strategy = "RANDOM"
)

// Execute runs input against the agent's underlying implementation.
type Execute func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Agent is a typed worker tracked by the pool.
type Agent struct {
	ID             string
	Type           AgentType
	Status         AgentStatus
	Capabilities   map[string]bool
	CurrentTask    string
	CompletedTasks []string // bounded history of completed task ids
	execute        Execute
}

// CanHandle reports whether the agent declares taskType among its
// capabilities.
func (a *Agent) CanHandle(taskType string) bool {
	return a.Capabilities[taskType]
}

const maxCompletedHistory = 200

// Event is a pool lifecycle notification.
type Event struct {
	Type    string // AGENT_REGISTERED, AGENT_UNREGISTERED, TASK_ASSIGNED, TASK_COMPLETED, TASK_FAILED, AGENT_STATUS_CHANGED
	AgentID string
	TaskType string
	Error   string
}

// EventHandler receives pool events.
type EventHandler func(Event)

var (
	ErrNoAvailableAgent = errors.New("agentpool: no available agent for task type")
	ErrUnknownAgent     = errors.New("agentpool: unknown agent id")
)

// defaultMapping is spec.md §4.11's task-type to agent-type table.
var defaultMapping = map[string]AgentType{
	"plan": ProjectManager, "manage": ProjectManager, "assign": ProjectManager, "track": ProjectManager,
	"design": Architect, "architecture": Architect,
	"develop": FullStackDeveloper, "implement": FullStackDeveloper, "api": FullStackDeveloper,
	"test": QAEngineer, "review": QAEngineer,
	"database": DatabaseExpert, "db_design": DatabaseExpert,
	"analyze": ProductManager, "requirement": ProductManager, "prd": ProductManager,
}

// Pool is the Agent Pool (C11).
type Pool struct {
	mu             sync.Mutex
	agents         map[string]*Agent // keyed by id
	order          []string          // insertion order, for ROUND_ROBIN
	mapping        map[string]AgentType
	fallbackEnabled bool
	roundRobinIdx  int
	rng            *rand.Rand
	handlers       []EventHandler
}

// New creates an empty Pool with spec.md's default task-type mapping.
func New(fallbackEnabled bool) *Pool {
	m := make(map[string]AgentType, len(defaultMapping))
	for k, v := range defaultMapping {
		m[k] = v
	}
	return &Pool{
		agents:          make(map[string]*Agent),
		mapping:         m,
		fallbackEnabled: fallbackEnabled,
		rng:             rand.New(rand.NewSource(1)),
	}
}

// OnEvent subscribes to pool lifecycle events.
func (p *Pool) OnEvent(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

func (p *Pool) emit(e Event) {
	p.mu.Lock()
	handlers := make([]EventHandler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

// Register adds agent to the pool keyed by (type, id) as spec.md describes;
// id alone is the lookup key in this implementation since ids are unique
// pool-wide.
func (p *Pool) Register(id string, agentType AgentType, capabilities []string, exec Execute) {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}

	p.mu.Lock()
	p.agents[id] = &Agent{
		ID:           id,
		Type:         agentType,
		Status:       StatusIdle,
		Capabilities: caps,
		execute:      exec,
	}
	p.order = append(p.order, id)
	p.mu.Unlock()

	p.emit(Event{Type: "AGENT_REGISTERED", AgentID: id})
}

// Unregister removes an agent from the pool.
func (p *Pool) Unregister(id string) {
	p.mu.Lock()
	delete(p.agents, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.emit(Event{Type: "AGENT_UNREGISTERED", AgentID: id})
}

// setStatus is called with p.mu held, so it reads p.handlers directly
// instead of going through emit, which would lock p.mu again.
func (p *Pool) setStatus(a *Agent, status AgentStatus) {
	if a.Status == status {
		return
	}
	a.Status = status
	e := Event{Type: "AGENT_STATUS_CHANGED", AgentID: a.ID}
	for _, h := range p.handlers {
		h(e)
	}
}

// candidateTypes resolves which agent types to search, per spec.md §4.11 step 1.
func (p *Pool) candidateTypes(taskType string, preferredType *AgentType) []AgentType {
	if preferredType != nil {
		return []AgentType{*preferredType}
	}
	if t, ok := p.mapping[taskType]; ok {
		return []AgentType{t}
	}
	seen := make(map[AgentType]bool)
	var all []AgentType
	for _, a := range p.agents {
		if !seen[a.Type] {
			seen[a.Type] = true
			all = append(all, a.Type)
		}
	}
	return all
}

// FindAvailableAgent selects an IDLE agent for taskType using strategy,
// per spec.md §4.11.
func (p *Pool) FindAvailableAgent(taskType string, preferredType *AgentType, strategy Strategy) *Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, candidateType := range p.candidateTypes(taskType, preferredType) {
		var idle []*Agent
		for _, id := range p.order {
			a := p.agents[id]
			if a != nil && a.Type == candidateType && a.Status == StatusIdle {
				idle = append(idle, a)
			}
		}
		if len(idle) == 0 {
			continue
		}

		switch strategy {
		case LeastLoaded:
			best := idle[0]
			for _, a := range idle[1:] {
				if len(a.CompletedTasks) < len(best.CompletedTasks) {
					best = a
				}
			}
			return best
		case RoundRobin:
			a := idle[p.roundRobinIdx%len(idle)]
			p.roundRobinIdx++
			return a
		case Random:
			return idle[p.rng.Intn(len(idle))]
		default: // CapabilityMatch
			for _, a := range idle {
				if a.CanHandle(taskType) {
					return a
				}
			}
			return idle[0]
		}
	}

	if p.fallbackEnabled {
		for _, id := range p.order {
			a := p.agents[id]
			if a != nil && a.Status == StatusIdle {
				return a
			}
		}
	}
	return nil
}

// AssignTask picks an agent per FindAvailableAgent, transitions it to
// BUSY, races execute(input) against taskTimeout, and resets it to IDLE
// (success) or ERROR-then-IDLE (timeout/failure).
func (p *Pool) AssignTask(ctx context.Context, taskType string, input map[string]interface{}, preferredAgentID string, taskTimeout time.Duration, strategy Strategy) (interface{}, error) {
	var preferred *AgentType

	p.mu.Lock()
	var agent *Agent
	if preferredAgentID != "" {
		agent = p.agents[preferredAgentID]
		if agent == nil || agent.Status != StatusIdle {
			p.mu.Unlock()
			return nil, ErrNoAvailableAgent
		}
	}
	p.mu.Unlock()

	if agent == nil {
		agent = p.FindAvailableAgent(taskType, preferred, strategy)
	}
	if agent == nil {
		return nil, ErrNoAvailableAgent
	}

	p.mu.Lock()
	p.setStatus(agent, StatusBusy)
	agent.CurrentTask = taskType
	p.mu.Unlock()
	p.emit(Event{Type: "TASK_ASSIGNED", AgentID: agent.ID, TaskType: taskType})

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	execCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	go func() {
		result, err := agent.execute(execCtx, input)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		p.mu.Lock()
		if o.err != nil {
			p.setStatus(agent, StatusError)
			agent.CurrentTask = ""
			p.setStatus(agent, StatusIdle)
			p.mu.Unlock()
			p.emit(Event{Type: "TASK_FAILED", AgentID: agent.ID, TaskType: taskType, Error: o.err.Error()})
			return nil, o.err
		}
		agent.CompletedTasks = append(agent.CompletedTasks, taskType)
		if len(agent.CompletedTasks) > maxCompletedHistory {
			agent.CompletedTasks = agent.CompletedTasks[len(agent.CompletedTasks)-maxCompletedHistory:]
		}
		agent.CurrentTask = ""
		p.setStatus(agent, StatusIdle)
		p.mu.Unlock()
		p.emit(Event{Type: "TASK_COMPLETED", AgentID: agent.ID, TaskType: taskType})
		return o.result, nil

	case <-execCtx.Done():
		p.mu.Lock()
		p.setStatus(agent, StatusError)
		agent.CurrentTask = ""
		p.setStatus(agent, StatusIdle)
		p.mu.Unlock()
		p.emit(Event{Type: "TASK_FAILED", AgentID: agent.ID, TaskType: taskType, Error: "timeout"})
		return nil, execCtx.Err()
	}
}

// Get returns a copy of the agent registered under id.
func (p *Pool) Get(id string) (Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return Agent{}, ErrUnknownAgent
	}
	return *a, nil
}
