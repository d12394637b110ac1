package models

// Requests for evaluation HTTP endpoints and queue payloads.

type EvaluationRequest struct {
	Dataset  string   `json:"dataset" validate:"required,alphanum,max=32"`
	Action   int      `json:"action" validate:"gte=0,lte=63"`
	Splits   []string `json:"splits" default:"[\"valid\",\"test\"]" validate:"min=1,dive,oneof=valid test"`
	Parallel bool     `json:"parallel"`
}

type EvaluationPath struct {
	ID    string `param:"id" validate:"required,uuid"`
	Split string `param:"split" validate:"omitempty,oneof=valid test"`
}

// EvaluationJob is the queue payload for one submitted evaluation.
type EvaluationJob struct {
	RunID   string            `json:"run_id"`
	Request EvaluationRequest `json:"request"`
}
