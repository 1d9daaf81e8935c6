package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

var tracer = otel.Tracer("concierge.internal.assistant")

// ErrRunTimeout reports that a run did not reach a terminal state before the
// polling deadline.
var ErrRunTimeout = errors.New("assistant: run polling deadline exceeded")

const (
	apologyReply       = "I apologize, but I'm having trouble processing your request right now."
	notConfiguredReply = "OpenAI API is not configured. Please set your OPENAI_API_KEY in the .env file to enable AI responses."

	defaultPollInterval = time.Second
	defaultRunTimeout   = 60 * time.Second
)

// Client is the Assistants API surface the dispatch loop depends on.
// *openai.Client satisfies it.
type Client interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)
}

// Config describes how the service reaches the Assistant Runtime.
type Config struct {
	Client       Client
	Chat         appointments.ChatClient
	AssistantID  string
	Model        string
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// Service owns the conversation with the Assistant Runtime: one thread per
// WhatsApp number, a run per turn, and dispatch of requested tool calls to
// the appointment operations.
type Service struct {
	client       Client
	chat         appointments.ChatClient
	assistantID  string
	model        string
	tools        AppointmentTools
	threads      *ThreadStore
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *logging.Logger
}

// NewService creates the dispatch loop service. A nil client or empty
// assistant ID degrades Reply to the plain chat completion path.
func NewService(cfg Config, tools AppointmentTools, threads *ThreadStore, logger *logging.Logger) *Service {
	if tools == nil {
		panic("assistant: appointment tools required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Service{
		client:       cfg.Client,
		chat:         cfg.Chat,
		assistantID:  cfg.AssistantID,
		model:        cfg.Model,
		tools:        tools,
		threads:      threads,
		pollInterval: cfg.PollInterval,
		runTimeout:   cfg.RunTimeout,
		logger:       logger.Component("assistant"),
	}
}

// Reply produces the assistant's answer to one inbound message. It returns
// the reply text and the thread ID, which is still returned when the run
// fails so a caller could resume the conversation. Any terminal failure maps
// to a fixed apologetic reply; the underlying detail goes to logs only.
func (s *Service) Reply(ctx context.Context, number, message string) (string, string) {
	if s.client == nil || s.assistantID == "" {
		return s.Completion(ctx, message), ""
	}

	ctx, span := tracer.Start(ctx, "assistant.reply")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.whatsapp_number", number))

	threadID := s.resolveThread(ctx, number)
	if threadID == "" {
		thread, err := s.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			s.logger.Error("failed to create thread", "whatsapp_number", number, "error", err)
			span.RecordError(err)
			return apologyReply, ""
		}
		threadID = thread.ID
		if err := s.threads.Save(ctx, number, threadID); err != nil {
			s.logger.Warn("failed to save thread mapping", "whatsapp_number", number, "error", err)
		}
	}
	span.SetAttributes(attribute.String("concierge.thread_id", threadID))

	content := fmt.Sprintf("User message: %s\nWhatsApp number: %s", message, number)
	if _, err := s.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}); err != nil {
		s.logger.Error("failed to append thread message", "thread_id", threadID, "error", err)
		span.RecordError(err)
		return apologyReply, threadID
	}

	run, err := s.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: s.assistantID,
		Tools:       toolDefinitions(),
	})
	if err != nil {
		s.logger.Error("failed to create run", "thread_id", threadID, "error", err)
		span.RecordError(err)
		return apologyReply, threadID
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	text, err := s.driveRun(runCtx, threadID, run, number)
	if err != nil {
		s.logger.Error("run did not produce a reply", "thread_id", threadID, "run_id", run.ID, "error", err)
		span.RecordError(err)
		return apologyReply, threadID
	}
	return text, threadID
}

// driveRun polls the run to a terminal state, dispatching tool calls as they
// are requested. The context deadline bounds the whole loop.
func (s *Service) driveRun(ctx context.Context, threadID string, run openai.Run, number string) (string, error) {
	for {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress:
			if err := s.waitPoll(ctx); err != nil {
				return "", err
			}
			next, err := s.client.RetrieveRun(ctx, threadID, run.ID)
			if err != nil {
				return "", fmt.Errorf("assistant: retrieve run: %w", err)
			}
			run = next

		case openai.RunStatusRequiresAction:
			outputs := s.collectToolOutputs(ctx, number, run)
			next, err := s.client.SubmitToolOutputs(ctx, threadID, run.ID, openai.SubmitToolOutputsRequest{
				ToolOutputs: outputs,
			})
			if err != nil {
				return "", fmt.Errorf("assistant: submit tool outputs: %w", err)
			}
			run = next

		case openai.RunStatusCompleted:
			return s.latestMessage(ctx, threadID)

		default:
			return "", fmt.Errorf("assistant: run ended in state %s", run.Status)
		}
	}
}

// collectToolOutputs executes every requested tool call and packages the
// results as one batch.
func (s *Service) collectToolOutputs(ctx context.Context, number string, run openai.Run) []openai.ToolOutput {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]openai.ToolOutput, 0, len(calls))
	for _, call := range calls {
		result := s.executeTool(ctx, number, call.Function.Name, call.Function.Arguments)
		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("failed to encode tool result", "function", call.Function.Name, "error", err)
			payload = []byte(`{"success":false,"message":"internal error"}`)
		}
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: call.ID,
			Output:     string(payload),
		})
	}
	return outputs
}

func (s *Service) waitPoll(ctx context.Context) error {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrRunTimeout
	case <-timer.C:
		return nil
	}
}

// latestMessage reads the newest thread message and returns its text content.
func (s *Service) latestMessage(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("assistant: list messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "", errors.New("assistant: thread has no messages")
	}
	for _, content := range list.Messages[0].Content {
		if content.Text != nil {
			return content.Text.Value, nil
		}
	}
	return "", errors.New("assistant: latest message has no text content")
}

// Completion answers through the plain chat completions API. Used by the
// manual test endpoint and as the degraded path when no assistant is
// configured.
func (s *Service) Completion(ctx context.Context, message string) string {
	if s.chat == nil {
		return notConfiguredReply
	}
	resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	if err != nil {
		s.logger.Error("chat completion failed", "error", err)
		return apologyReply
	}
	if len(resp.Choices) == 0 {
		return apologyReply
	}
	return resp.Choices[0].Message.Content
}

func (s *Service) resolveThread(ctx context.Context, number string) string {
	threadID, err := s.threads.Lookup(ctx, number)
	if err != nil {
		// A broken lookup falls back to a fresh thread rather than failing
		// the message.
		s.logger.Warn("thread lookup failed", "whatsapp_number", number, "error", err)
		return ""
	}
	return threadID
}
