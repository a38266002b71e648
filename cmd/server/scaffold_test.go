package main

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"memberportal/internal/platform/logger"
	auditpublisher "memberportal/pkg/platform/audit/publisher"
	auditmemory "memberportal/pkg/platform/audit/store/memory"
	"memberportal/pkg/testutil"
)

func TestRouterScaffold(t *testing.T) {
	testutil.Given(t, "the assembled router", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		a := buildApp(testConfig(), &infra{}, auditpublisher.NewPublisher(auditmemory.NewInMemoryStore()), logger.NewNop(), reg, reg)

		for _, journeyType := range []string{"retirement", "transfer", "quote_selection"} {
			base := "/journeys/" + journeyType
			testutil.When(t, "calling "+base+" routes without a token", func(t *testing.T) {
				for _, route := range []struct{ method, path string }{
					{http.MethodGet, base},
					{http.MethodPost, base + "/steps"},
					{http.MethodGet, base + "/pages/hub/previous"},
					{http.MethodPost, base + "/pages/hub/generic-data/form"},
					{http.MethodPost, base + "/submit"},
				} {
					rec := testutil.Serve(a.router, testutil.Request(t, route.method, route.path, ""))

					testutil.Then(t, route.method+" "+route.path+" should require authentication", func(t *testing.T) {
						testutil.RequireError(t, rec, http.StatusUnauthorized, "unauthorized")
					})
				}
			})
		}

		testutil.When(t, "calling an unknown journey type", func(t *testing.T) {
			rec := testutil.Serve(a.router, testutil.Request(t, http.MethodGet, "/journeys/mortgage", ""))

			testutil.Then(t, "it should respond with not found", func(t *testing.T) {
				testutil.RequireStatus(t, rec, http.StatusNotFound)
			})
		})
	})
}
