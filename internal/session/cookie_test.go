package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookieRoundTrip(t *testing.T) {
	codec := NewCookieCodec("test-secret")

	rr := httptest.NewRecorder()
	if err := codec.Issue(rr, "sess-123", false); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Name != CookieName {
		t.Errorf("Expected cookie name %q, got %q", CookieName, cookies[0].Name)
	}
	if !cookies[0].HttpOnly {
		t.Error("Expected HttpOnly cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	sid, ok := codec.Read(req)
	if !ok {
		t.Fatal("Expected cookie to verify")
	}
	if sid != "sess-123" {
		t.Errorf("Expected session id 'sess-123', got %q", sid)
	}
}

func TestCookieRejectsTampering(t *testing.T) {
	codec := NewCookieCodec("test-secret")
	other := NewCookieCodec("other-secret")

	rr := httptest.NewRecorder()
	if err := other.Issue(rr, "sess-forged", false); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rr.Result().Cookies()[0])

	if _, ok := codec.Read(req); ok {
		t.Error("Expected cookie signed with another secret to be rejected")
	}
}

func TestCookieMissing(t *testing.T) {
	codec := NewCookieCodec("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := codec.Read(req); ok {
		t.Error("Expected missing cookie to read as absent")
	}
}

func TestCookieGarbageValue(t *testing.T) {
	codec := NewCookieCodec("test-secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-jwt"})
	if _, ok := codec.Read(req); ok {
		t.Error("Expected garbage cookie to be rejected")
	}
}
