package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/solarleadcapture/internal/models"
)

// WorkflowReviewTrigger starts a Cloud Workflows execution for each
// finalized lead.
type WorkflowReviewTrigger struct {
	parent string
	create func(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error)
	logger *slog.Logger
}

// NewWorkflowReviewTrigger creates executions of the workflow named by parent.
func NewWorkflowReviewTrigger(client *executions.Client, parent string, logger *slog.Logger) *WorkflowReviewTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowReviewTrigger{
		parent: parent,
		create: func(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
			return client.CreateExecution(ctx, req)
		},
		logger: logger,
	}
}

func (w *WorkflowReviewTrigger) Trigger(ctx context.Context, arg models.WorkflowArgument) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow argument: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent:    w.parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	}
	exec, err := w.create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	w.logger.Info("Review workflow triggered.", "userId", arg.UserID, "execution", exec.GetName())
	return nil
}
