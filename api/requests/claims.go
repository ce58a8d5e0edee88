package requests

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Dcadv789/scalazap/db"
)

// Claims identificam um perfil (pessoa). A empresa ativa não vai no token:
// ela é resolvida por request a partir das linhas de membros.
type Claims struct {
	ProfileID string `json:"profileId"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// AuthContext é o resultado da resolução de tenant: quem é o membro e em
// qual empresa ele está operando nesta request.
type AuthContext struct {
	Membro       db.Membro
	TenantID     string
	IsSuperAdmin bool
}

type ctxKey string

const authKey ctxKey = "auth"

func WithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authKey, a)
}

func GetAuth(r *http.Request) *AuthContext {
	if a, ok := r.Context().Value(authKey).(*AuthContext); ok {
		return a
	}
	return nil
}

type TokenProvider struct {
	Secret []byte
}

func (p TokenProvider) Sign(profileID, email string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims := Claims{
		ProfileID: profileID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "scalazap-api",
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(p.Secret)
	return signed, exp, err
}

// Parse valida assinatura e expiração. Token expirado e token inválido
// colapsam no mesmo erro: a camada HTTP responde 401 nos dois casos.
func (p TokenProvider) Parse(tokenStr string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return p.Secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	cl, ok := tok.Claims.(*Claims)
	if !ok || cl.ProfileID == "" {
		return nil, errors.New("invalid token")
	}
	return cl, nil
}

// TokenFromRequest procura o JWT em Authorization: Bearer, no cookie de
// sessão ou em ?token= (usado no upgrade de WebSocket).
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie("sz_session"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
