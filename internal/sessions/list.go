package sessions

import (
	"cmp"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/matchflow/pkg/query"
)

// Filters narrows a session listing. Nil fields are ignored; all set fields
// must match exactly.
type Filters struct {
	Status        *OverallStatus
	SourceType    *SourceType
	DocumentID    *string
	CorrelationID *string
}

// FiltersFromQuery reads status, sourceType, documentId, and correlationId
// from URL query values.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if v := values.Get("status"); v != "" {
		s := OverallStatus(v)
		f.Status = &s
	}
	if v := values.Get("sourceType"); v != "" {
		s := SourceType(strings.ToUpper(v))
		f.SourceType = &s
	}
	if v := values.Get("documentId"); v != "" {
		f.DocumentID = &v
	}
	if v := values.Get("correlationId"); v != "" {
		f.CorrelationID = &v
	}
	return f
}

// Apply adds the filter conditions to b.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("overallStatus", f.Status).
		WhereEquals("sourceType", f.SourceType).
		WhereEquals("documentId", f.DocumentID).
		WhereEquals("correlationId", f.CorrelationID)
}

// Match reports whether s satisfies every set filter.
func (f Filters) Match(s *Session) bool {
	switch {
	case f.Status != nil && s.OverallStatus != *f.Status:
		return false
	case f.SourceType != nil && s.SourceType != *f.SourceType:
		return false
	case f.DocumentID != nil && s.DocumentID != *f.DocumentID:
		return false
	case f.CorrelationID != nil && s.CorrelationID != *f.CorrelationID:
		return false
	}
	return true
}

// projection orders columns to match scanSession.
var projection = query.
	NewProjectionMap("public", "workflow_sessions", "s").
	Project("session_id", "sessionId").
	Project("correlation_id", "correlationId").
	Project("document_id", "documentId").
	Project("source_type", "sourceType").
	Project("overall_status", "overallStatus").
	Project("stages", "stages").
	Project("classification", "classification").
	Project("token_usage", "tokenUsage").
	Project("created_at", "createdAt").
	Project("updated_at", "updatedAt").
	Project("completed_at", "completedAt").
	Project("expires_at", "expiresAt")

var defaultSort = query.SortField{Field: "createdAt", Descending: true}

var searchFields = []string{"documentId", "correlationId"}

func matchesSearch(s *Session, search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	needle := strings.ToLower(*search)
	return strings.Contains(strings.ToLower(s.DocumentID), needle) ||
		strings.Contains(strings.ToLower(s.CorrelationID), needle)
}

// sortSessions orders ss in place the way the SQL listing does. Unknown
// fields are skipped; sessionId breaks ties so pages are stable.
func sortSessions(ss []Session, fields []query.SortField) {
	keys := make([]query.SortField, 0, len(fields)+1)
	for _, f := range fields {
		if projection.Has(f.Field) {
			keys = append(keys, f)
		}
	}
	if len(keys) == 0 {
		keys = append(keys, defaultSort)
	}
	keys = append(keys, query.SortField{Field: "sessionId"})

	slices.SortStableFunc(ss, func(a, b Session) int {
		for _, k := range keys {
			c := compareField(&a, &b, k.Field)
			if k.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareField(a, b *Session, field string) int {
	switch field {
	case "sessionId":
		return cmp.Compare(a.SessionID, b.SessionID)
	case "correlationId":
		return cmp.Compare(a.CorrelationID, b.CorrelationID)
	case "documentId":
		return cmp.Compare(a.DocumentID, b.DocumentID)
	case "sourceType":
		return cmp.Compare(a.SourceType, b.SourceType)
	case "overallStatus":
		return cmp.Compare(a.OverallStatus, b.OverallStatus)
	case "classification":
		return cmp.Compare(deref(a.Classification), deref(b.Classification))
	case "createdAt":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "completedAt":
		return derefTime(a.CompletedAt).Compare(derefTime(b.CompletedAt))
	case "expiresAt":
		return a.ExpiresAt.Compare(b.ExpiresAt)
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
