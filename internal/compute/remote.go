package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

type remote struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

type evaluateRequest struct {
	Model  Model    `json:"model"`
	Inputs []Inputs `json:"inputs"`
}

type evaluateResponse struct {
	Values []float64 `json:"values"`
}

// NewRemote returns an engine that posts evaluation requests to an external
// model service at cfg.Endpoint. Requests are rate limited across all
// callers of the engine.
func NewRemote(cfg *Config) Engine {
	return &remote{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.TimeoutDuration()},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

func (e *remote) Evaluate(ctx context.Context, model Model, inputs []Inputs) ([]float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(evaluateRequest{Model: model, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/evaluate", e.endpoint, model.Form)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, Timeout(err, "model %s", model.ID)
		}
		return nil, &Error{reason: ReasonModelUnavailable, detail: "model " + model.ID, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError(resp.StatusCode, model.ID, strings.TrimSpace(string(msg)))
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidInput("model %s: decode response: %v", model.ID, err)
	}
	if len(out.Values) != len(inputs) {
		return nil, InvalidInput("model %s: %d values for %d inputs", model.ID, len(out.Values), len(inputs))
	}
	return out.Values, nil
}

func statusError(status int, modelID, msg string) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusServiceUnavailable:
		return Unavailable("model %s: status %d: %s", modelID, status, msg)
	case status == http.StatusTooManyRequests || status == http.StatusGatewayTimeout || status >= 500:
		return Timeout(nil, "model %s: status %d: %s", modelID, status, msg)
	default:
		return InvalidInput("model %s: status %d: %s", modelID, status, msg)
	}
}
