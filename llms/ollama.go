package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/internal/httpclient"
)

// OllamaProvider implements Provider over an Ollama-compatible /api/chat
// endpoint.
type OllamaProvider struct {
	config      *config.LLMConfig
	httpClient  *httpclient.Client
	streamHTTP  *httpclient.Client
	baseURL     string
	idleTimeout time.Duration
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   interface{}    `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider from config. The non-streaming client
// carries the configured wall-clock timeout; the streaming client has none
// and relies on the idle-gap watchdog instead.
func NewOllamaProvider(cfg *config.LLMConfig) (*OllamaProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return &OllamaProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithRetryStrategy(httpclient.NoRetryStrategy),
		),
		streamHTTP: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{}),
			httpclient.WithRetryStrategy(httpclient.NoRetryStrategy),
		),
		baseURL:     strings.TrimSuffix(cfg.Host, "/"),
		idleTimeout: time.Duration(cfg.IdleTimeout) * time.Second,
	}, nil
}

func (p *OllamaProvider) ModelName() string {
	return p.config.Model
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	tracer := otel.Tracer("opsassist.llm")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.model", p.modelFor(opts)),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	response, err := p.makeRequest(ctx, p.buildRequest(messages, false, opts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if response.Error != "" {
		apiErr := fmt.Errorf("chat API error: %s", response.Error)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error)
		return "", apiErr
	}

	span.SetAttributes(
		attribute.Int("llm.tokens_input", response.PromptEvalCount),
		attribute.Int("llm.tokens_output", response.EvalCount),
	)
	span.SetStatus(codes.Ok, "success")

	return response.Message.Content, nil
}

func (p *OllamaProvider) GenerateStreaming(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, opts)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		tracer := otel.Tracer("opsassist.llm")
		ctx, span := tracer.Start(ctx, "llm.generate",
			trace.WithAttributes(
				attribute.String("llm.model", p.modelFor(opts)),
				attribute.Bool("streaming", true),
			),
		)
		defer span.End()

		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			outputCh <- StreamChunk{Type: "error", Error: err}
			return
		}
		span.SetStatus(codes.Ok, "success")
	}()

	return outputCh, nil
}

func (p *OllamaProvider) modelFor(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.config.Model
}

func (p *OllamaProvider) buildRequest(messages []Message, stream bool, opts Options) ollamaRequest {
	request := ollamaRequest{
		Model:    p.modelFor(opts),
		Messages: messages,
		Stream:   stream,
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if temperature > 0 || maxTokens > 0 {
		request.Options = &ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		}
	}

	if opts.JSONFormat {
		request.Format = "json"
	}

	return request
}

func (p *OllamaProvider) makeRequest(ctx context.Context, request ollamaRequest) (*ollamaResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}

func (p *OllamaProvider) makeStreamingRequest(ctx context.Context, request ollamaRequest, outputCh chan<- StreamChunk) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Cancel the read when no token arrives within the idle window.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.streamHTTP.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			var errorJSON struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(bodyBytes, &errorJSON) == nil && errorJSON.Error != "" {
				return fmt.Errorf("chat API error: %s", errorJSON.Error)
			}
			return fmt.Errorf("chat API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}
	}
	if err != nil {
		return fmt.Errorf("failed to make streaming request: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("failed to make streaming request: no response received")
	}

	idle := time.AfterFunc(p.idleTimeout, cancel)
	defer idle.Stop()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("stream idle for %v: %w", p.idleTimeout, ctx.Err())
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
		idle.Reset(p.idleTimeout)

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		if chunk.Error != "" {
			return fmt.Errorf("chat API error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			outputCh <- StreamChunk{Type: "text", Text: chunk.Message.Content}
		}

		if chunk.Done {
			outputCh <- StreamChunk{Type: "done", Tokens: chunk.PromptEvalCount + chunk.EvalCount}
			break
		}
	}

	return nil
}
