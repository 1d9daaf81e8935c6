package appointments

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

const (
	// CanonicalLayout is the timestamp format booking times are stored in.
	CanonicalLayout = "2006-01-02 15:04:05"
	// DisplayLayout is the human-facing booking time format.
	DisplayLayout = "January 2, 2006 at 3:04 PM"

	dateLayout = "January 2, 2006"
	timeLayout = "3:04 PM"

	// InvalidFormatHint is the user-facing message for unparseable input.
	InvalidFormatHint = "Invalid date/time format. Please use format: 'Month Day, Year at Hour:Minute AM/PM' (e.g., 'August 24, 2025 at 2:00 PM')"

	validTag   = "VALID_DATETIME:"
	invalidTag = "INVALID_DATETIME:"
)

var isoPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// ChatClient is the completion surface the normalizer falls back to.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NormalizeResult is the typed outcome of a normalization attempt. The tag
// protocol spoken with the model never leaves this package.
type NormalizeResult struct {
	Canonical string
	Valid     bool
	Hint      string
}

// Normalizer converts free-form date/time phrases into canonical timestamps.
// Two hand-coded patterns are tried first; anything else is delegated to the
// chat model. No timezone handling, no past-date validation.
type Normalizer struct {
	chat   ChatClient
	model  string
	logger *logging.Logger
}

// NewNormalizer creates a normalizer. A nil chat client disables the model
// fallback; pattern input still parses.
func NewNormalizer(chat ChatClient, model string, logger *logging.Logger) *Normalizer {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{chat: chat, model: model, logger: logger}
}

// Normalize resolves raw into a canonical "YYYY-MM-DD HH:MM:SS" string.
// Order is strict: the literal phrase pattern, then ISO passthrough, then the
// model. Parsing is deterministic and idempotent for the first two steps.
func (n *Normalizer) Normalize(ctx context.Context, raw string) NormalizeResult {
	raw = strings.TrimSpace(raw)

	if canonical, ok := parsePhrase(raw); ok {
		return NormalizeResult{Canonical: canonical, Valid: true}
	}

	if isoPattern.MatchString(raw) {
		return NormalizeResult{Canonical: raw, Valid: true}
	}

	return n.normalizeWithModel(ctx, raw)
}

// parsePhrase handles the literal "Month Day, Year at Hour:Minute AM/PM"
// pattern, combining date and time parts.
func parsePhrase(raw string) (string, bool) {
	if !strings.Contains(raw, " at ") || !strings.Contains(raw, ",") {
		return "", false
	}
	datePart, timePart, _ := strings.Cut(raw, " at ")

	parsedDate, err := time.Parse(dateLayout, strings.TrimSpace(datePart))
	if err != nil {
		return "", false
	}
	parsedClock, err := time.Parse(timeLayout, strings.TrimSpace(timePart))
	if err != nil {
		return "", false
	}

	combined := time.Date(
		parsedDate.Year(), parsedDate.Month(), parsedDate.Day(),
		parsedClock.Hour(), parsedClock.Minute(), 0, 0, time.UTC,
	)
	return combined.Format(CanonicalLayout), true
}

func (n *Normalizer) normalizeWithModel(ctx context.Context, raw string) NormalizeResult {
	if n.chat == nil {
		return NormalizeResult{Valid: false, Hint: InvalidFormatHint}
	}

	resp, err := n.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: datetimePrompt(raw)},
		},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		n.logger.Error("datetime model fallback failed", "error", err)
		return NormalizeResult{Valid: false, Hint: InvalidFormatHint}
	}
	if len(resp.Choices) == 0 {
		return NormalizeResult{Valid: false, Hint: InvalidFormatHint}
	}

	reply := resp.Choices[0].Message.Content
	n.logger.Info("datetime model fallback reply", "reply", reply)

	if idx := strings.Index(reply, validTag); idx >= 0 {
		canonical := strings.TrimSpace(reply[idx+len(validTag):])
		if isoPattern.MatchString(canonical) {
			return NormalizeResult{Canonical: canonical, Valid: true}
		}
	}
	if idx := strings.Index(reply, invalidTag); idx >= 0 {
		return NormalizeResult{Valid: false, Hint: strings.TrimSpace(reply[idx+len(invalidTag):])}
	}

	// A reply with neither tag is a failure; the contract is not retried.
	return NormalizeResult{Valid: false, Hint: InvalidFormatHint}
}

func parseCanonical(s string) (time.Time, error) {
	return time.Parse(CanonicalLayout, s)
}

func datetimePrompt(raw string) string {
	return fmt.Sprintf(`You are a helpful medical appointment assistant at Assana Clinic. Parse this date/time string into a proper datetime format for appointment scheduling.

User input: %q

Your task is to:
1. Extract the date and time from the input
2. Convert it to ISO format: YYYY-MM-DD HH:MM:SS
3. If you can parse it, respond with "VALID_DATETIME: YYYY-MM-DD HH:MM:SS"
4. If you cannot parse it, respond with "INVALID_DATETIME: Please provide date and time in format 'Month Day, Year at Hour:Minute AM/PM' for your Assana Clinic appointment"

Examples:
- "August 20, 2025 at 3:00 PM" becomes "VALID_DATETIME: 2025-08-20 15:00:00"
- "August 24, 2025 at 2:00 PM" becomes "VALID_DATETIME: 2025-08-24 14:00:00"
- "tomorrow at 2pm" becomes "VALID_DATETIME: [calculated date] 14:00:00"

IMPORTANT: Respond with EXACTLY "VALID_DATETIME: [iso_format]" or "INVALID_DATETIME: [message]" and no other text.`, raw)
}
