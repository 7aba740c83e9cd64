package workflow

import (
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/openapi"
)

// Schemas returns the component schemas for workflow requests and replies.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"Submission": {
			Type:     "object",
			Required: []string{"documentId", "sourceType"},
			Properties: map[string]*openapi.Schema{
				"documentId":    {Type: "string", Description: "Document to process"},
				"sourceType":    openapi.Enum("Submitting side", sessions.SourceBank, sessions.SourceCounterparty),
				"correlationId": {Type: "string", Description: "Caller trace identifier; repeated submissions with the same value return the original session"},
			},
		},
		"BatchSubmission": {
			Type:     "object",
			Required: []string{"documents"},
			Properties: map[string]*openapi.Schema{
				"documents": openapi.ArrayOf(openapi.SchemaRef("Submission")),
			},
		},
		"BatchResult": {
			Type:     "object",
			Required: []string{"index", "documentId"},
			Properties: map[string]*openapi.Schema{
				"index":      {Type: "integer", Description: "Position in the submitted batch"},
				"documentId": {Type: "string"},
				"session":    openapi.SchemaRef("Session"),
				"error":      {Type: "string", Description: "Rejection reason when no session was created"},
			},
		},
		"Invocation": {
			Type:     "object",
			Required: []string{"invocationId", "sessionId", "status"},
			Properties: map[string]*openapi.Schema{
				"invocationId": {Type: "string", Format: "uuid"},
				"sessionId":    {Type: "string", Format: "uuid"},
				"status":       openapi.Enum("Invocation status", "accepted"),
			},
		},
	}
}

var correlationParam = openapi.HeaderParam(middleware.CorrelationHeader, "Correlation identifier used when the body omits one")

var submitOp = &openapi.Operation{
	Summary:     "Submit document",
	Description: "Creates a session and starts adapt, extract, match, and exception handling in the background.",
	Tags:        []string{"Workflow"},
	Parameters:  []*openapi.Parameter{correlationParam},
	RequestBody: openapi.RequestBodyJSON("Submission", true),
	Responses: map[int]*openapi.Response{
		202: openapi.ResponseJSON("Session created", "Session"),
		400: openapi.ResponseRef("BadRequest"),
		503: openapi.ResponseRef("Unavailable"),
	},
}

var batchOp = &openapi.Operation{
	Summary:     "Submit documents",
	Description: "Starts one workflow per document. Invalid entries are reported per index without failing the batch.",
	Tags:        []string{"Workflow"},
	Parameters:  []*openapi.Parameter{correlationParam},
	RequestBody: openapi.RequestBodyJSON("BatchSubmission", true),
	Responses: map[int]*openapi.Response{
		202: openapi.ResponseSchema("Per-document results", &openapi.Schema{
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"results": openapi.ArrayOf(openapi.SchemaRef("BatchResult")),
			},
		}),
		400: openapi.ResponseRef("BadRequest"),
		503: openapi.ResponseRef("Unavailable"),
	},
}

var invokeMatchingOp = &openapi.Operation{
	Summary:     "Invoke matching",
	Description: "Runs match for a session held after extract.",
	Tags:        []string{"Workflow"},
	Parameters:  []*openapi.Parameter{openapi.UUIDPathParam("sessionId", "Workflow session identifier")},
	Responses: map[int]*openapi.Response{
		202: openapi.ResponseJSON("Matching started", "Invocation"),
		404: openapi.ResponseRef("NotFound"),
		409: openapi.ResponseRef("Conflict"),
		503: openapi.ResponseRef("Unavailable"),
	},
}
