package admin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/streamkit/ssehub"
	"github.com/streamkit/ssehub/admin"
)

// it should serve a HTML index page
func TestAdminHTTPIndex(t *testing.T) {
	s, err := ssehub.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	req, err := http.NewRequest("GET", "/admin/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := admin.AdminHandler(s)
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}
}

// it should expose a REST JSON status API
func TestAdminHTTPStatusAPI(t *testing.T) {
	s, err := ssehub.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	req, err := http.NewRequest("GET", "/admin/status.json", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := admin.AdminHandler(s)
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	if ctype := rr.Header().Get("Content-Type"); ctype != "application/json" {
		t.Errorf("content type header does not match: got %v want %v",
			ctype, "application/json")
	}
}

// it should disable all HTTP endpoints when asked to
func TestAdminDisableEndpoints(t *testing.T) {
	s, err := ssehub.NewServer(ssehub.WithoutAdminEndpoints())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	for _, path := range []string{"/admin/", "/admin/status.json"} {
		req, err := http.NewRequest("GET", path, nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		handler := admin.AdminHandler(s)
		handler.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusForbidden {
			t.Errorf("handler returned wrong status code: got %v want %v",
				status, http.StatusForbidden)
		}

		expected := "403 admin endpoint disabled\n"
		if rr.Body.String() != expected {
			t.Errorf("handler returned unexpected body: got %v want %v",
				rr.Body.String(), expected)
		}
	}
}
