package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/assanaclinic/whatsapp-concierge/internal/http/handlers"
)

func newTestRouter(adminSecret string) http.Handler {
	gateway := &fakeGateway{}
	return New(&Config{
		WebhookHandler:  handlers.NewWebhookHandler(gateway, fakeResponder{}, nil, nil),
		TestingHandler:  handlers.NewTestingHandler(gateway, fakeDirectory{}, fakeCompleter{}, nil, nil),
		AdminAuthSecret: adminSecret,
	})
}

func TestWebhookVerificationRoute(t *testing.T) {
	r := newTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=987", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "987" {
		t.Fatalf("expected challenge echo, got %q", rec.Body.String())
	}
}

func TestHealthRouteIsPublic(t *testing.T) {
	r := newTestRouter("secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestManualEndpointsRequireAdminToken(t *testing.T) {
	r := newTestRouter("secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-templates", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestManualEndpointsOpenWithoutSecret(t *testing.T) {
	r := newTestRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check-templates", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
