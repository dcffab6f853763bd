package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// Part is one normalized content part of a model message.
type Part struct {
	Type     string // "text" | "image"
	Text     string
	ImageURL string // https://... or data:image/...;base64,...
}

// Message is one turn in a model conversation. Role "tool" carries a
// function-call result back to the model and must set ToolCallID.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Parts      []Part
	ToolCallID string
	ToolOutput string
}

// ToolSpec declares a callable function the model may invoke.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// InvokeRequest is the provider-neutral request shape. When Schema is set the
// response is constrained to strict structured output.
type InvokeRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	SchemaName  string
	Schema      map[string]any
	Temperature *float64
}

// InvokeResult is the normalized response: either text, function calls, or
// both, plus token usage.
type InvokeResult struct {
	Text          string
	FunctionCalls []FunctionCall
	Usage         Usage
}

// Client is the raw model API client. It performs exactly one HTTP attempt
// per Invoke; retry and backoff policy live in the call throttler so there is
// a single place that reasons about rate limits.
type Client interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	DefaultModel() string
}

type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("model http %d: %s", e.StatusCode, e.Body)
}

// IsRateLimit reports whether err is a 429 from the model API.
func IsRateLimit(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether err is transient: timeouts, connection errors,
// 408/429, or 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
	}
	return false
}

// RetryAfter extracts the server-suggested delay, zero when absent.
func RetryAfter(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-5.2"
	}

	embed := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "ModelClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		embedModel: embed,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) DefaultModel() string { return c.model }

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
				httpErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return httpErr
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("model decode error: %w; raw=%s", uErr, string(raw))
	}
	return nil
}

// ---- Responses API ----

type responsesRequest struct {
	Model       string   `json:"model"`
	Input       []any    `json:"input"`
	Tools       []any    `json:"tools,omitempty"`
	Text        *reqText `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type reqText struct {
	Format map[string]any `json:"format"`
}

type responsesResponse struct {
	Output []struct {
		Type      string `json:"type"`
		Role      string `json:"role,omitempty"`
		CallID    string `json:"call_id,omitempty"`
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
		Content   []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Usage   Usage  `json:"usage"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	input := make([]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "tool" {
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.ToolOutput,
			})
			continue
		}
		content := make([]any, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case "image":
				content = append(content, map[string]any{
					"type":      "input_image",
					"image_url": p.ImageURL,
				})
			default:
				content = append(content, map[string]any{
					"type": "input_text",
					"text": p.Text,
				})
			}
		}
		input = append(input, map[string]any{
			"role":    m.Role,
			"content": content,
		})
	}

	body := responsesRequest{
		Model:       model,
		Input:       input,
		Temperature: req.Temperature,
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		})
	}
	if req.Schema != nil {
		body.Text = &reqText{Format: map[string]any{
			"type":   "json_schema",
			"name":   req.SchemaName,
			"schema": req.Schema,
			"strict": true,
		}}
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", body, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	result := &InvokeResult{Usage: resp.Usage}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			if item.Role != "assistant" {
				continue
			}
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					result.Text += part.Text
				}
			}
		case "function_call":
			call := FunctionCall{CallID: item.CallID, Name: item.Name}
			if strings.TrimSpace(item.Arguments) != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
					c.log.Warn("Unparsable function call arguments, skipping call",
						"name", item.Name, "error", err)
					continue
				}
				call.Arguments = args
			}
			result.FunctionCalls = append(result.FunctionCalls, call)
		}
	}
	return result, nil
}

// ---- Embeddings ----

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	req := embeddingsRequest{Model: c.embedModel, Input: inputs}
	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}
