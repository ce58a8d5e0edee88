package requests

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignParseRoundTrip(t *testing.T) {
	p := TokenProvider{Secret: []byte("segredo-de-teste")}

	tok, exp, err := p.Sign("perfil-1", "dona@loja.com", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("exp = %v, want ~1h", exp)
	}

	cl, err := p.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cl.ProfileID != "perfil-1" || cl.Email != "dona@loja.com" {
		t.Fatalf("claims = %+v", cl)
	}
}

func TestParseExpired(t *testing.T) {
	p := TokenProvider{Secret: []byte("segredo-de-teste")}
	tok, _, err := p.Sign("perfil-1", "dona@loja.com", -time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := p.Parse(tok); err == nil {
		t.Fatal("token expirado deveria falhar")
	}
}

func TestParseWrongSecret(t *testing.T) {
	tok, _, err := TokenProvider{Secret: []byte("a")}.Sign("perfil-1", "x@y.com", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := (TokenProvider{Secret: []byte("b")}).Parse(tok); err == nil {
		t.Fatal("assinatura errada deveria falhar")
	}
}

func TestParseGarbage(t *testing.T) {
	p := TokenProvider{Secret: []byte("s")}
	for _, tok := range []string{"", "abc", "a.b.c"} {
		if _, err := p.Parse(tok); err == nil {
			t.Errorf("Parse(%q) deveria falhar", tok)
		}
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.Header.Set("Authorization", "Bearer do-header")
	r.AddCookie(&http.Cookie{Name: "sz_session", Value: "do-cookie"})
	if got := TokenFromRequest(r); got != "do-header" {
		t.Errorf("header deveria ter prioridade, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/auth/me?token=da-query", nil)
	r.AddCookie(&http.Cookie{Name: "sz_session", Value: "do-cookie"})
	if got := TokenFromRequest(r); got != "do-cookie" {
		t.Errorf("cookie vem antes da query, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/ws?token=da-query", nil)
	if got := TokenFromRequest(r); got != "da-query" {
		t.Errorf("query como último recurso, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("sem token, got %q", got)
	}
}
