package assistant

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
)

// Tool names the assistant may request. These match the function definitions
// registered on each run.
const (
	toolGetDetails     = "get_appointment_details"
	toolUpdateName     = "update_appointment_name"
	toolUpdateDatetime = "update_appointment_datetime_db"
	toolUpdateClinic   = "update_appointment_clinic"
)

// AppointmentTools is the local function surface the dispatch loop exposes to
// the assistant.
type AppointmentTools interface {
	GetDetails(ctx context.Context, number string) appointments.ToolResult
	UpdateName(ctx context.Context, number, newName string) appointments.ToolResult
	UpdateBookingTime(ctx context.Context, number, raw string) appointments.ToolResult
	UpdateClinic(ctx context.Context, number, newClinic string) appointments.ToolResult
}

// toolDefinitions returns the function tools registered on every run.
func toolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolGetDetails,
				Description: "Get appointment details for the current user",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolUpdateName,
				Description: "Update patient name for appointments",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"new_name": map[string]any{
							"type":        "string",
							"description": "The new patient name",
						},
					},
					"required": []string{"new_name"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolUpdateDatetime,
				Description: "Update appointment date and time",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"new_datetime_str": map[string]any{
							"type":        "string",
							"description": "The new date and time in format 'Month Day, Year at Hour:Minute AM/PM'",
						},
					},
					"required": []string{"new_datetime_str"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolUpdateClinic,
				Description: "Update clinic name for appointments",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"new_clinic": map[string]any{
							"type":        "string",
							"description": "The new clinic name",
						},
					},
					"required": []string{"new_clinic"},
				},
			},
		},
	}
}

// executeTool runs one requested tool call. The number always comes from the
// inbound message; a model-supplied whatsapp_number argument is discarded so
// the model's text can never target another user's records. Unknown names
// produce a soft-failure result so the run can still be resumed.
func (s *Service) executeTool(ctx context.Context, number, name string, rawArgs string) appointments.ToolResult {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			s.logger.Warn("malformed tool arguments", "function", name, "error", err)
			return appointments.ToolResult{Success: false, Message: "Malformed function arguments"}
		}
	}
	if _, forged := args["whatsapp_number"]; forged {
		args["whatsapp_number"] = number
	}
	s.logger.Info("calling function", "function", name, "whatsapp_number", number)

	switch name {
	case toolGetDetails:
		return s.tools.GetDetails(ctx, number)
	case toolUpdateName:
		return s.tools.UpdateName(ctx, number, stringArg(args, "new_name"))
	case toolUpdateDatetime:
		return s.tools.UpdateBookingTime(ctx, number, stringArg(args, "new_datetime_str"))
	case toolUpdateClinic:
		return s.tools.UpdateClinic(ctx, number, stringArg(args, "new_clinic"))
	default:
		s.logger.Warn("unknown function requested", "function", name)
		return appointments.ToolResult{Success: false, Message: "Unknown function"}
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
