package orchestrator

import "errors"

// Sentinel errors for the create workflow.
var (
	// ErrInvalidDraft indicates the draft failed local validation.
	ErrInvalidDraft = errors.New("invalid project draft")

	// ErrPredictionFailed indicates the prediction call failed.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrDeploymentFailed indicates the deploy call failed.
	ErrDeploymentFailed = errors.New("deployment failed")
)
