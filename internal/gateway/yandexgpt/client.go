// Package yandexgpt implements the model gateway against the Yandex
// Foundation Models text generation API over gRPC.
package yandexgpt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	fm "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/foundation_models/v1"
	fmtg "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/foundation_models/v1/text_generation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/firstday-app/firstday/internal/gateway"
)

const providerName = "yandexgpt"

// DefaultEndpoint is the public Foundation Models gRPC endpoint.
const DefaultEndpoint = "llm.api.cloud.yandex.net:443"

// Client calls YandexGPT. The folder ID and model name come from server
// configuration; the API key arrives per request with the session.
type Client struct {
	folderID        string
	model           string
	maxOutputTokens int
	temperature     float64
	logger          *slog.Logger
	conn            *grpc.ClientConn
}

// NewClient dials the gRPC endpoint. Extra dial options replace the default
// TLS credentials, which lets tests use an insecure local server.
func NewClient(ctx context.Context, logger *slog.Logger, folderID, model string, maxOutputTokens int, temperature float64, target string, opts ...grpc.DialOption) (*Client, error) {
	if folderID == "" {
		return nil, errors.New("yandexgpt: folder ID is required")
	}
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	}

	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc connection: %w", err)
	}

	return &Client{
		folderID:        folderID,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		temperature:     temperature,
		logger:          logger.With("component", "yandexgpt_client"),
		conn:            conn,
	}, nil
}

// Close tears down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// buildMessages maps the transcript history plus the rendered prompt into the
// API's message shape. The gateway's "model" role becomes "assistant" here.
func buildMessages(req gateway.GenerateRequest) []*fm.Message {
	messages := make([]*fm.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.Role == gateway.RoleModel {
			role = "assistant"
		}
		messages = append(messages, &fm.Message{
			Role:    role,
			Content: &fm.Message_Text{Text: turn.Text},
		})
	}
	messages = append(messages, &fm.Message{
		Role:    "user",
		Content: &fm.Message_Text{Text: req.Prompt},
	})
	return messages
}

// Generate sends one completion call. All failures come back as *gateway.Error.
func (c *Client) Generate(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
	startTime := time.Now()

	if req.Credential == "" {
		return gateway.GenerateResult{}, gateway.WrapError("missing API credential", nil)
	}

	md := metadata.New(map[string]string{
		"authorization": "Api-Key " + req.Credential,
		"x-folder-id":   c.folderID,
	})
	ctx = metadata.NewOutgoingContext(ctx, md)

	modelURI := fmt.Sprintf("gpt://%s/%s", c.folderID, c.model)

	c.logger.Info("Sending request to YandexGPT",
		"model_uri", modelURI,
		"history_turns", len(req.History),
		"prompt_chars", len(req.Prompt),
	)

	client := fmtg.NewTextGenerationServiceClient(c.conn)
	stream, err := client.Completion(ctx, &fmtg.CompletionRequest{
		ModelUri: modelURI,
		CompletionOptions: &fm.CompletionOptions{
			Stream:      false,
			Temperature: wrapperspb.Double(c.temperature),
			MaxTokens:   wrapperspb.Int64(int64(c.maxOutputTokens)),
		},
		Messages: buildMessages(req),
	})
	if err != nil {
		return c.fail(startTime, "failed to call YandexGPT", err)
	}

	// Non-streaming requests still arrive over a server stream; the final
	// message carries the complete alternative.
	var last *fmtg.CompletionResponse
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.fail(startTime, "yandexgpt API error", err)
		}
		last = resp
	}

	if last == nil || len(last.Alternatives) == 0 {
		return c.fail(startTime, "empty response from YandexGPT", nil)
	}

	text := last.Alternatives[0].GetMessage().GetText()
	if text == "" {
		return c.fail(startTime, "empty response from YandexGPT", nil)
	}

	var promptTokens, completionTokens int
	if usage := last.GetUsage(); usage != nil {
		promptTokens = int(usage.GetInputTextTokens())
		completionTokens = int(usage.GetCompletionTokens())
	}

	c.logger.Info("YandexGPT response received",
		"model_version", last.GetModelVersion(),
		"prompt_tokens", promptTokens,
		"completion_tokens", completionTokens,
	)

	gateway.RecordRequest(providerName, c.model, time.Since(startTime).Seconds(), true, promptTokens, completionTokens)

	return gateway.GenerateResult{
		Text:             text,
		Model:            c.model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func (c *Client) fail(startTime time.Time, message string, err error) (gateway.GenerateResult, error) {
	gateway.RecordRequest(providerName, c.model, time.Since(startTime).Seconds(), false, 0, 0)
	return gateway.GenerateResult{}, gateway.WrapError(message, err)
}
