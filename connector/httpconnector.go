package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evalcore/evalcore/types"
	"github.com/pkoukk/tiktoken-go"
)

// HTTPTransportConfig configures the one concrete Connector adapter this
// module ships: an OpenAI-compatible chat completions endpoint, grounded on
// llm/providers/openaicompat.Provider's Config/Completion shape.
type HTTPTransportConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	EndpointPath string // defaults to "/v1/chat/completions"
	Timeout      time.Duration

	// PricePerPromptToken and PricePerCompletionToken estimate cost when a
	// response doesn't report one itself, mirroring the cost-accumulation
	// pattern of agent/evaluation.EvalResult.
	PricePerPromptToken     float64
	PricePerCompletionToken float64

	// Encoding selects the tiktoken encoding used to estimate tokens when
	// the provider's response omits a usage block. Defaults to cl100k_base.
	Encoding string
}

type httpChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type httpChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPTransport is a Transport that POSTs to an OpenAI-compatible chat
// completions endpoint, grounded on openaicompat.Provider.Completion:
// net/http.Client, Bearer auth header, JSON request/response, HTTP status
// mapped onto the evaluation core's error taxonomy instead of llm.Error.
type HTTPTransport struct {
	cfg    HTTPTransportConfig
	client *http.Client
	enc    *tiktoken.Tiktoken
}

// NewHTTPTransport builds an HTTPTransport. The tiktoken encoding is loaded
// lazily on first Do call that needs it (a response without a usage block),
// matching tokenizer.TiktokenTokenizer's once-guarded init.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "cl100k_base"
	}
	return &HTTPTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *HTTPTransport) Name() string { return t.cfg.ProviderName }

func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	body := httpChatRequest{Model: req.ModelID, Messages: req.Messages}
	if v, ok := req.Parameters["temperature"].(float64); ok {
		body.Temperature = v
	}
	if v, ok := req.Parameters["max_tokens"].(int); ok {
		body.MaxTokens = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, types.NewError(types.KindInvalid, "marshal request").WithCause(err)
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + t.cfg.EndpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, types.NewError(types.KindInvalid, "build request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, types.NewError(types.KindTransport, "model provider unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Response{}, mapHTTPStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var chatResp httpChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Response{}, types.NewError(types.KindTransport, "decode provider response").WithCause(err)
	}
	if len(chatResp.Choices) == 0 {
		return Response{}, types.NewError(types.KindTransport, "provider returned no choices")
	}

	usage := types.TokenUsage{
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		TotalTokens:      chatResp.Usage.TotalTokens,
	}
	text := chatResp.Choices[0].Message.Content
	if usage.TotalTokens == 0 {
		usage = t.estimateUsage(req, text)
	}
	usage.Cost = float64(usage.PromptTokens)*t.cfg.PricePerPromptToken +
		float64(usage.CompletionTokens)*t.cfg.PricePerCompletionToken

	return Response{
		Text:      text,
		Usage:     usage,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// estimateUsage falls back to tiktoken counting when the provider doesn't
// report a usage block, mirroring rag.TiktokenAdapter's use of tiktoken-go
// as a more precise stand-in for a character-count heuristic.
func (t *HTTPTransport) estimateUsage(req Request, responseText string) types.TokenUsage {
	if t.enc == nil {
		enc, err := tiktoken.GetEncoding(t.cfg.Encoding)
		if err != nil {
			return types.TokenUsage{}
		}
		t.enc = enc
	}

	prompt := 0
	for _, m := range req.Messages {
		prompt += len(t.enc.Encode(m.Content, nil, nil))
	}
	completion := len(t.enc.Encode(responseText, nil, nil))
	return types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// mapHTTPStatus maps a provider HTTP status onto the evaluation core's
// error taxonomy, grounded on providers.MapHTTPError's status-to-code
// switch but targeting types.ErrorKind instead of llm.Error.
func mapHTTPStatus(status int, msg string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.KindForbidden, msg)
	case http.StatusTooManyRequests:
		return types.NewError(types.KindRateLimited, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return types.NewError(types.KindInvalid, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return types.NewError(types.KindTransport, msg)
	default:
		if status >= 500 {
			return types.NewError(types.KindTransport, msg)
		}
		return types.NewError(types.KindInvalid, msg)
	}
}

// readErrorMessage mirrors providers.ReadErrorMessage: parse a generic
// {"error":{"message":...}} envelope, falling back to the raw body.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	if len(data) > 256 {
		data = data[:256]
	}
	return string(data)
}
