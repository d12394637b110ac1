package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	xhttp "FinReplay/pkg/http"
)

// RemoteProvider delegates inference to a model server:
//
//	GET  {base}/metadata -> {"input_size": n}
//	POST {base}/predict  {"state": [...]} -> {"action": k}
type RemoteProvider struct {
	baseURL   string
	client    *xhttp.Client
	inputSize int
	attempts  int
}

type remoteMetadata struct {
	InputSize int `json:"input_size"`
}

type predictRequest struct {
	State []float64 `json:"state"`
}

type predictResponse struct {
	Action int `json:"action"`
}

// NewRemoteProvider fetches the model metadata once so InputSize is known before the first step.
func NewRemoteProvider(ctx context.Context, baseURL string, cfg Config) (*RemoteProvider, error) {
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	p := &RemoteProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: cfg.RemoteRetries,
	}

	var meta remoteMetadata
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    p.baseURL + "/metadata",
	}, &meta)
	if err != nil {
		return nil, fmt.Errorf("get %s/metadata: %w", p.baseURL, err)
	}
	if meta.InputSize <= 0 {
		return nil, fmt.Errorf("%s reports input size %d", p.baseURL, meta.InputSize)
	}
	p.inputSize = meta.InputSize
	return p, nil
}

func (p *RemoteProvider) ID() string { return p.baseURL }

func (p *RemoteProvider) InputSize() int { return p.inputSize }

func (p *RemoteProvider) Predict(ctx context.Context, state []float64) (int, error) {
	var out predictResponse
	if err := p.postJSONWithRetry(ctx, "/predict", predictRequest{State: state}, &out); err != nil {
		return 0, err
	}
	return out.Action, nil
}

func (p *RemoteProvider) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    p.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with linear backoff. Client errors are not retried.
func (p *RemoteProvider) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = p.postJSON(ctx, path, payload, dest)
		if err == nil || !xhttp.IsRetryable(err) || i == attempts {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
