package sessions

import "github.com/JaimeStill/matchflow/pkg/openapi"

// Schemas returns the component schemas for session documents.
func Schemas() map[string]*openapi.Schema {
	str := func(desc string) *openapi.Schema { return &openapi.Schema{Type: "string", Description: desc} }
	ts := func(desc string) *openapi.Schema {
		return &openapi.Schema{Type: "string", Format: "date-time", Description: desc}
	}
	count := &openapi.Schema{Type: "integer", Format: "int64"}

	stageState := openapi.Enum("Stage status",
		StatePending, StateInProgress, StateSuccess, StateError, StateWarning)

	return map[string]*openapi.Schema{
		"SubStep": {
			Type:     "object",
			Required: []string{"name", "status"},
			Properties: map[string]*openapi.Schema{
				"name":     str("Sub-step name"),
				"status":   stageState,
				"activity": str("Current activity"),
				"children": openapi.ArrayOf(openapi.SchemaRef("SubStep")),
			},
		},
		"ErrorDetail": {
			Type:     "object",
			Required: []string{"kind", "message"},
			Properties: map[string]*openapi.Schema{
				"kind":       str("Failure category"),
				"message":    str("Failure message"),
				"attempts":   {Type: "integer", Description: "Agent invocation attempts made"},
				"statusCode": {Type: "integer", Description: "Last agent HTTP status"},
			},
		},
		"StageStatus": {
			Type:     "object",
			Required: []string{"status"},
			Properties: map[string]*openapi.Schema{
				"status":      stageState,
				"activity":    str("Human-readable progress text"),
				"startedAt":   ts("When the stage started"),
				"completedAt": ts("When the stage reached a terminal status"),
				"elapsedMs":   {Type: "integer", Format: "int64", Description: "Stage duration in milliseconds"},
				"subSteps":    openapi.ArrayOf(openapi.SchemaRef("SubStep")),
				"errorDetail": openapi.SchemaRef("ErrorDetail"),
				"outputRef":   str("Archive key or inline reference for the stage output"),
				"skipped":     {Type: "boolean", Description: "Stage was not needed"},
			},
		},
		"TokenUsage": {
			Type:     "object",
			Required: []string{"inputTokens", "outputTokens", "totalTokens"},
			Properties: map[string]*openapi.Schema{
				"inputTokens":  count,
				"outputTokens": count,
				"totalTokens":  count,
			},
		},
		"Session": {
			Type: "object",
			Required: []string{
				"sessionId", "correlationId", "documentId", "sourceType",
				"overallStatus", "stages", "createdAt", "updatedAt", "expiresAt",
			},
			Properties: map[string]*openapi.Schema{
				"sessionId":      {Type: "string", Format: "uuid"},
				"correlationId":  str("Caller-supplied or generated correlation identifier"),
				"documentId":     str("Submitted document identifier"),
				"sourceType":     openapi.Enum("Submitting side", SourceBank, SourceCounterparty),
				"overallStatus":  openapi.Enum("Session status", StatusInitializing, StatusProcessing, StatusCompleted, StatusFailed),
				"stages":         openapi.MapOf("Stage status keyed by stage name", openapi.SchemaRef("StageStatus")),
				"classification": str("Match classification once available"),
				"tokenUsage":     openapi.SchemaRef("TokenUsage"),
				"createdAt":      ts(""),
				"updatedAt":      ts(""),
				"completedAt":    ts(""),
				"expiresAt":      ts("When the session becomes eligible for cleanup"),
			},
		},
		"Exception": {
			Type:     "object",
			Required: []string{"id", "sessionId", "severity", "message", "sourceStage", "recoverable", "timestamp"},
			Properties: map[string]*openapi.Schema{
				"id":          {Type: "string", Format: "uuid"},
				"sessionId":   {Type: "string", Format: "uuid"},
				"severity":    openapi.Enum("Exception severity", SeverityInfo, SeverityWarning, SeverityError),
				"message":     str(""),
				"sourceStage": openapi.Enum("Stage that raised the exception", Pipeline()...),
				"recoverable": {Type: "boolean"},
				"timestamp":   ts(""),
			},
		},
	}
}

var sessionIDParam = openapi.UUIDPathParam("sessionId", "Workflow session identifier")

var statusOp = &openapi.Operation{
	Summary:    "Read session status",
	Tags:       []string{"Sessions"},
	Parameters: []*openapi.Parameter{sessionIDParam},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Current session snapshot", "Session"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var exceptionsOp = &openapi.Operation{
	Summary:    "List session exceptions",
	Tags:       []string{"Sessions"},
	Parameters: []*openapi.Parameter{sessionIDParam},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseSchema("Exceptions oldest first", openapi.ArrayOf(openapi.SchemaRef("Exception"))),
		404: openapi.ResponseRef("NotFound"),
	},
}

var listOp = &openapi.Operation{
	Summary: "List sessions",
	Tags:    []string{"Sessions"},
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("page", "Page number, 1-indexed", openapi.Integer(1, 0)),
		openapi.QueryParam("pageSize", "Results per page, capped by the server maximum", openapi.Integer(1, 0)),
		openapi.QueryParam("search", "Substring match on documentId or correlationId", openapi.String()),
		openapi.QueryParam("sort", "Comma-separated fields, - prefix for descending. Example: -createdAt", openapi.String()),
		openapi.QueryParam("status", "", openapi.Enum("Overall status", StatusInitializing, StatusProcessing, StatusCompleted, StatusFailed)),
		openapi.QueryParam("sourceType", "", openapi.Enum("Submitting side", SourceBank, SourceCounterparty)),
		openapi.QueryParam("documentId", "Exact document id", openapi.String()),
		openapi.QueryParam("correlationId", "Exact correlation id", openapi.String()),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseSchema("One page of sessions", &openapi.Schema{
			Type:     "object",
			Required: []string{"data", "total", "page", "pageSize", "totalPages"},
			Properties: map[string]*openapi.Schema{
				"data":       openapi.ArrayOf(openapi.SchemaRef("Session")),
				"total":      {Type: "integer"},
				"page":       {Type: "integer"},
				"pageSize":   {Type: "integer"},
				"totalPages": {Type: "integer"},
			},
		}),
		400: openapi.ResponseRef("BadRequest"),
	},
}
