package openapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/matchflow/pkg/openapi"
)

func TestNewSpec(t *testing.T) {
	spec := openapi.NewSpec("Test API", "1.0.0")

	if spec.OpenAPI != "3.1.0" {
		t.Errorf("openapi version: got %s, want 3.1.0", spec.OpenAPI)
	}
	if spec.Info.Title != "Test API" || spec.Info.Version != "1.0.0" {
		t.Errorf("info: got %s %s", spec.Info.Title, spec.Info.Version)
	}
	if spec.Components == nil {
		t.Fatal("components should not be nil")
	}
	if spec.Paths == nil {
		t.Fatal("paths should not be nil")
	}
}

func TestAddOperation(t *testing.T) {
	spec := openapi.NewSpec("Test", "1.0.0")
	get := &openapi.Operation{Summary: "read"}
	post := &openapi.Operation{Summary: "write"}

	spec.AddOperation("/workflow/{sessionId}", "GET", get)
	spec.AddOperation("/workflow/{sessionId}", "post", post)

	item, ok := spec.Paths["/workflow/{sessionId}"]
	if !ok {
		t.Fatal("path not added")
	}
	if item.Get != get || item.Post != post {
		t.Errorf("operations: got get=%v post=%v", item.Get, item.Post)
	}
}

func TestAddOperationUnsupportedMethodPanics(t *testing.T) {
	spec := openapi.NewSpec("Test", "1.0.0")

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for PATCH")
		}
	}()
	spec.AddOperation("/workflow/{sessionId}", "PATCH", &openapi.Operation{})
}

func TestRefs(t *testing.T) {
	if ref := openapi.SchemaRef("Session"); ref.Ref != "#/components/schemas/Session" {
		t.Errorf("schema ref: got %s", ref.Ref)
	}
	if ref := openapi.ResponseRef("NotFound"); ref.Ref != "#/components/responses/NotFound" {
		t.Errorf("response ref: got %s", ref.Ref)
	}

	rb := openapi.RequestBodyJSON("Submission", true)
	if !rb.Required || rb.Content["application/json"].Schema.Ref != "#/components/schemas/Submission" {
		t.Errorf("request body: got %+v", rb)
	}

	resp := openapi.ResponseJSON("Created", "Session")
	if resp.Description != "Created" || resp.Content["application/json"].Schema.Ref != "#/components/schemas/Session" {
		t.Errorf("response: got %+v", resp)
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name       string
		param      *openapi.Parameter
		wantIn     string
		wantReq    bool
		wantFormat string
	}{
		{"path", openapi.PathParam("stage", "Stage"), "path", true, ""},
		{"uuid path", openapi.UUIDPathParam("sessionId", "Session"), "path", true, "uuid"},
		{"header", openapi.HeaderParam("X-Correlation-ID", "Correlation"), "header", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.param.In != tt.wantIn {
				t.Errorf("in: got %s, want %s", tt.param.In, tt.wantIn)
			}
			if tt.param.Required != tt.wantReq {
				t.Errorf("required: got %v, want %v", tt.param.Required, tt.wantReq)
			}
			if tt.param.Schema.Type != "string" || tt.param.Schema.Format != tt.wantFormat {
				t.Errorf("schema: got type=%s format=%s", tt.param.Schema.Type, tt.param.Schema.Format)
			}
		})
	}
}

func TestUUIDPathParamDoesNotShareSchema(t *testing.T) {
	openapi.UUIDPathParam("sessionId", "Session")
	if p := openapi.PathParam("stage", "Stage"); p.Schema.Format != "" {
		t.Errorf("format leaked: got %s", p.Schema.Format)
	}
}

func TestQueryParamSchemas(t *testing.T) {
	page := openapi.QueryParam("page", "Page number", openapi.Integer(1, 0))
	if page.In != "query" || page.Required {
		t.Errorf("page: got in=%s required=%v", page.In, page.Required)
	}
	if page.Schema.Minimum == nil || *page.Schema.Minimum != 1 || page.Schema.Maximum != nil {
		t.Errorf("page bounds: got %+v", page.Schema)
	}

	size := openapi.Integer(1, 200)
	if size.Maximum == nil || *size.Maximum != 200 {
		t.Errorf("max: got %+v", size.Maximum)
	}
}

func TestCollectionSchemas(t *testing.T) {
	arr := openapi.ArrayOf(openapi.SchemaRef("Session"))
	if arr.Type != "array" || arr.Items.Ref != "#/components/schemas/Session" {
		t.Errorf("array: got %+v", arr)
	}

	m := openapi.MapOf("Stages", openapi.SchemaRef("StageStatus"))
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"object","description":"Stages","additionalProperties":{"$ref":"#/components/schemas/StageStatus"}}`
	if string(data) != want {
		t.Errorf("map: got %s, want %s", data, want)
	}
}

func TestResponseRefOmitsDescription(t *testing.T) {
	data, err := json.Marshal(openapi.ResponseRef("NotFound"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"$ref":"#/components/responses/NotFound"}` {
		t.Errorf("ref: got %s", data)
	}
}

type level string

func TestEnum(t *testing.T) {
	s := openapi.Enum("Severity", level("info"), level("error"))

	if s.Type != "string" || s.Description != "Severity" {
		t.Errorf("schema: got %+v", s)
	}
	if !slices.Equal(s.Enum, []any{"info", "error"}) {
		t.Errorf("enum: got %v", s.Enum)
	}
}

func TestNewComponentsDefaults(t *testing.T) {
	c := openapi.NewComponents()

	if _, ok := c.Schemas["Error"]; !ok {
		t.Error("missing default schema: Error")
	}
	for _, name := range []string{"BadRequest", "NotFound", "Conflict", "Unavailable"} {
		resp, ok := c.Responses[name]
		if !ok {
			t.Errorf("missing default response: %s", name)
			continue
		}
		if resp.Content["application/json"].Schema.Ref != "#/components/schemas/Error" {
			t.Errorf("%s: schema ref got %s", name, resp.Content["application/json"].Schema.Ref)
		}
	}

	c.AddSchemas(map[string]*openapi.Schema{"Session": {Type: "object"}})
	c.AddResponses(map[string]*openapi.Response{"Gone": {Description: "gone"}})
	if _, ok := c.Schemas["Session"]; !ok {
		t.Error("AddSchemas did not merge")
	}
	if _, ok := c.Responses["Gone"]; !ok {
		t.Error("AddResponses did not merge")
	}
}

func TestConfig(t *testing.T) {
	t.Setenv("TEST_OPENAPI_TITLE", "Env Title")

	cfg := openapi.Config{}
	if err := cfg.Finalize(&openapi.ConfigEnv{Title: "TEST_OPENAPI_TITLE"}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if cfg.Title != "Env Title" {
		t.Errorf("title: got %s, want Env Title", cfg.Title)
	}
	if cfg.Description == "" {
		t.Error("description default not applied")
	}

	cfg.Merge(&openapi.Config{ServerURL: "https://matchflow.example.com/api"})
	if cfg.ServerURL != "https://matchflow.example.com/api" || cfg.Title != "Env Title" {
		t.Errorf("merge: got %+v", cfg)
	}
}

func TestConfigBuild(t *testing.T) {
	cfg := openapi.Config{Title: "Matchflow API", Description: "desc"}

	spec := cfg.Build("1.2.0", "/api")
	if spec.Info.Title != "Matchflow API" || spec.Info.Version != "1.2.0" || spec.Info.Description != "desc" {
		t.Errorf("info: got %+v", spec.Info)
	}
	if len(spec.Servers) != 1 || spec.Servers[0].URL != "/api" {
		t.Errorf("servers: got %+v, want /api", spec.Servers)
	}

	cfg.ServerURL = "https://matchflow.example.com/api"
	spec = cfg.Build("1.2.0", "/api")
	if len(spec.Servers) != 1 || spec.Servers[0].URL != cfg.ServerURL {
		t.Errorf("servers: got %+v, want %s", spec.Servers, cfg.ServerURL)
	}
}

func TestServeSpec(t *testing.T) {
	spec := openapi.NewSpec("Test", "1.0.0")
	spec.AddOperation("/workflow", "POST", &openapi.Operation{
		Summary:   "Submit",
		Responses: map[int]*openapi.Response{202: {Description: "Accepted"}},
	})

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rec := httptest.NewRecorder()
	openapi.ServeSpec(data)(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content-type: got %s", ct)
	}

	body, _ := io.ReadAll(res.Body)
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	paths := parsed["paths"].(map[string]any)
	post := paths["/workflow"].(map[string]any)["post"].(map[string]any)
	if _, ok := post["responses"].(map[string]any)["202"]; !ok {
		t.Errorf("responses should key by status string: got %v", post["responses"])
	}
}
