package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// DefaultMaxTokens applies when a request does not set MaxTokens.
	DefaultMaxTokens int `yaml:"default_max_tokens"`
}

// Anthropic invokes the Anthropic Messages API. The instance is explicitly
// constructed and owned by its caller; there is no package-level client.
type Anthropic struct {
	cfg    AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// NewAnthropic creates an Anthropic client. The API key is required.
func NewAnthropic(cfg AnthropicConfig, logger *zap.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Anthropic{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "anthropic_client"), zap.String("model", cfg.Model)),
	}, nil
}

// Model returns the configured model identifier.
func (a *Anthropic) Model() string { return a.cfg.Model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicErrorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Anthropic) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// Invoke sends one request to the Messages API. Remote failures come back as
// structured errors; the returned Response carries the message text, the
// submitted request's ID and usage metadata.
func (a *Anthropic) Invoke(ctx context.Context, req types.Request) (types.Response, error) {
	body := anthropicRequest{
		Model: a.cfg.Model,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Content},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = a.cfg.DefaultMaxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return types.Response{}, types.NewError(types.ErrInvalidRequest, "encode request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(a.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.Response{}, types.NewError(types.ErrInternal, "build request").WithCause(err)
	}
	a.buildHeaders(httpReq)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("anthropic call failed", zap.String("request_id", req.ID), zap.Error(err))
		return types.Response{}, types.NewError(types.ErrUpstreamError, "anthropic call failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Response{}, types.NewError(types.ErrUpstreamError, "read response body").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := readAnthropicErrMsg(raw)
		a.logger.Warn("anthropic returned error status",
			zap.String("request_id", req.ID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return types.Response{}, mapHTTPError(resp.StatusCode, msg)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return types.Response{}, types.NewError(types.ErrUpstreamError, "decode response").WithCause(err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	metadata := map[string]any{
		"message_id":  parsed.ID,
		"model":       parsed.Model,
		"stop_reason": parsed.StopReason,
	}
	if parsed.Usage != nil {
		metadata["input_tokens"] = parsed.Usage.InputTokens
		metadata["output_tokens"] = parsed.Usage.OutputTokens
	}

	a.logger.Debug("anthropic call completed",
		zap.String("request_id", req.ID),
		zap.String("message_id", parsed.ID),
		zap.Duration("latency", time.Since(start)),
	)

	return types.Response{
		Content:   text.String(),
		RequestID: req.ID,
		Success:   true,
		Metadata:  metadata,
	}, nil
}

func readAnthropicErrMsg(raw []byte) string {
	var er anthropicErrorResp
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
