package events

import "github.com/JaimeStill/matchflow/pkg/openapi"

// Schemas returns the component schema for the event envelope.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"EventEnvelope": {
			Type:     "object",
			Required: []string{"type", "sessionId", "timestamp", "data"},
			Properties: map[string]*openapi.Schema{
				"type": openapi.Enum("Event variant",
					TypeAgentStatusUpdate, TypeStepUpdate, TypeResultAvailable, TypeException),
				"sessionId": {Type: "string", Format: "uuid"},
				"timestamp": {Type: "string", Format: "date-time"},
				"data":      {Type: "object", Description: "Variant payload selected by type"},
			},
		},
	}
}

var streamOp = &openapi.Operation{
	Summary:     "Stream session events",
	Description: "Upgrades to a WebSocket carrying EventEnvelope messages. The first message " +
		"is a status snapshot; the stream closes after RESULT_AVAILABLE.",
	Tags:       []string{"Events"},
	Parameters: []*openapi.Parameter{openapi.UUIDPathParam("sessionId", "Workflow session identifier")},
	Responses: map[int]*openapi.Response{
		101: {Description: "Switching to WebSocket"},
		404: openapi.ResponseRef("NotFound"),
	},
}
