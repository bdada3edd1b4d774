package service

import (
	"context"
	"encoding/json"

	"github.com/G159w/chat-bot-cordinator/pkg/models"
)

// TaskRunner executes one task by dispatching on its type. It never persists
// anything; recording results is the orchestrator's job.
type TaskRunner struct {
	caller    ModelCaller
	evaluator ConditionEvaluator
}

// NewTaskRunner builds a runner around the injected capabilities. Nil
// arguments fall back to the mock implementations.
func NewTaskRunner(caller ModelCaller, evaluator ConditionEvaluator) *TaskRunner {
	if caller == nil {
		caller = NewMockModelCaller()
	}
	if evaluator == nil {
		evaluator = NewAlwaysTrueEvaluator()
	}
	return &TaskRunner{caller: caller, evaluator: evaluator}
}

// Run dispatches the task and returns its output map. Task types outside the
// closed set yield an UnknownTaskTypeError.
func (r *TaskRunner) Run(ctx context.Context, task models.Task, input models.JSONMap) (models.JSONMap, error) {
	switch task.Type {
	case models.AgentTaskType:
		return r.runAgentTask(ctx, task, input)
	case models.ConditionTaskType:
		return r.runConditionTask(ctx, task, input)
	case models.InputTaskType:
		return models.JSONMap{
			"config":    task.Config,
			"processed": input,
			"taskName":  task.Name,
		}, nil
	default:
		return nil, &UnknownTaskTypeError{Type: string(task.Type)}
	}
}

func (r *TaskRunner) runAgentTask(ctx context.Context, task models.Task, input models.JSONMap) (models.JSONMap, error) {
	spec := AgentSpec{Name: task.Name}
	if task.Config != nil {
		if v, ok := task.Config["model"].(string); ok {
			spec.Model = v
		}
		if v, ok := task.Config["instructions"].(string); ok {
			spec.Instructions = v
		}
	}
	response, err := r.caller.Call(ctx, spec, encodeInput(input))
	if err != nil {
		return nil, err
	}
	return models.JSONMap{
		"config":   task.Config,
		"input":    input,
		"response": response,
	}, nil
}

func (r *TaskRunner) runConditionTask(ctx context.Context, task models.Task, input models.JSONMap) (models.JSONMap, error) {
	ok, err := r.evaluator.Evaluate(ctx, task.Config, input)
	if err != nil {
		return nil, err
	}
	result := "false"
	if ok {
		result = "true"
	}
	return models.JSONMap{
		"condition": ok,
		"config":    task.Config,
		"input":     input,
		"result":    "Condition " + task.Name + " evaluated to " + result,
	}, nil
}

func encodeInput(input models.JSONMap) string {
	if input == nil {
		return ""
	}
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(b)
}
