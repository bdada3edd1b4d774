package service

import (
	"context"
	"fmt"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
)

// AgentSpec describes the agent an LLM call runs as. Flow tasks fill it from
// task config; workflow runs fill it from the agent row.
type AgentSpec struct {
	Name         string
	Role         string
	Model        string
	Instructions string
	Temperature  int
}

// ModelCaller invokes a language model on behalf of an agent. Implementations
// are injected so the orchestrators stay independent of any LLM client.
type ModelCaller interface {
	Call(ctx context.Context, agent AgentSpec, input string) (string, error)
}

// ConditionEvaluator evaluates a condition task. The real implementation is an
// expression evaluator; the default stub always passes.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, config models.JSONMap, input models.JSONMap) (bool, error)
}

type mockModelCaller struct{}

// NewMockModelCaller returns a ModelCaller that echoes a deterministic
// response without touching any model API.
func NewMockModelCaller() ModelCaller {
	return mockModelCaller{}
}

func (mockModelCaller) Call(_ context.Context, agent AgentSpec, input string) (string, error) {
	if agent.Role != "" {
		return fmt.Sprintf("Mock response from %s (%s): %s", agent.Name, agent.Role, input), nil
	}
	return fmt.Sprintf("Mock response from %s", agent.Name), nil
}

type alwaysTrueEvaluator struct{}

// NewAlwaysTrueEvaluator returns a ConditionEvaluator whose conditions always
// hold.
func NewAlwaysTrueEvaluator() ConditionEvaluator {
	return alwaysTrueEvaluator{}
}

func (alwaysTrueEvaluator) Evaluate(_ context.Context, _ models.JSONMap, _ models.JSONMap) (bool, error) {
	return true, nil
}
