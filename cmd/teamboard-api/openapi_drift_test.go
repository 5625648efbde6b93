package main

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"testing"

	"teamboard-api/internal/config"
	"teamboard-api/internal/http/docs"
	"teamboard-api/internal/http/handler"
	"teamboard-api/internal/observability/logger"
	"teamboard-api/internal/telemetry"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIDriftCheck(t *testing.T) {
	r := buildRouter(RouterDeps{
		Cfg:               &config.Config{OTELServiceName: "test", AppEnv: "dev"},
		Log:               logger.NewNop(),
		PromMetrics:       telemetry.NewPromMetrics(),
		MeHandler:         &handler.MeHandler{},
		WorkspaceHandler:  &handler.WorkspaceHandler{},
		MembershipHandler: &handler.MembershipHandler{},
		ProjectHandler:    &handler.ProjectHandler{},
		TaskHandler:       &handler.TaskHandler{},
		DebugHandler:      &handler.DebugHandler{},
	})

	doc, err := openapi3.NewLoader().LoadFromData(docs.GetSpecBytes())
	require.NoError(t, err)

	documented := make(map[string]bool)
	for path, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			documented[fmt.Sprintf("%s %s", strings.ToUpper(method), path)] = true
		}
	}

	implemented := make(map[string]bool)
	walkFunc := func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if strings.HasPrefix(route, "/debug") {
			return nil
		}
		m := strings.ToUpper(method)
		switch m {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			implemented[fmt.Sprintf("%s %s", m, normalizeChiPath(route))] = true
		}
		return nil
	}
	require.NoError(t, chi.Walk(r, walkFunc))

	if missing := difference(implemented, documented); len(missing) > 0 {
		t.Errorf("routes implemented but NOT documented in OpenAPI:\n%s", strings.Join(missing, "\n"))
	}
	if stale := difference(documented, implemented); len(stale) > 0 {
		t.Errorf("routes documented in OpenAPI but NOT implemented:\n%s", strings.Join(stale, "\n"))
	}
}

func difference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

var chiRegexParam = regexp.MustCompile(`\{([^:}]+):[^}]+\}`)

// normalizeChiPath drops regex constraints from chi parameters and the
// trailing slash chi reports for "/" routes inside r.Route.
func normalizeChiPath(path string) string {
	normalized := chiRegexParam.ReplaceAllString(path, "{$1}")
	if len(normalized) > 1 && strings.HasSuffix(normalized, "/") {
		normalized = normalized[:len(normalized)-1]
	}
	return normalized
}

func TestNormalizeChiPath(t *testing.T) {
	require.Equal(t, "/v1/workspaces/{workspaceId}", normalizeChiPath("/v1/workspaces/{workspaceId}/"))
	require.Equal(t, "/v1/tasks/{taskId}", normalizeChiPath("/v1/tasks/{taskId:[0-9a-f-]+}"))
	require.Equal(t, "/", normalizeChiPath("/"))
}
