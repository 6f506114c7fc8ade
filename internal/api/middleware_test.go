package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
)

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestBearerAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks := newJWKSServer(t, "k1", &key.PublicKey)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + signToken(t, key, "k1", jwt.MapClaims{"sub": "user_1", "exp": exp}), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"unknown kid", "Bearer " + signToken(t, key, "k2", jwt.MapClaims{"sub": "user_1", "exp": exp}), http.StatusUnauthorized},
		{"wrong key", "Bearer " + signToken(t, other, "k1", jwt.MapClaims{"sub": "user_1", "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, key, "k1", jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, key, "k1", jwt.MapClaims{"sub": "user_1"}), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, key, "k1", jwt.MapClaims{"exp": exp}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &relayServiceStub{result: &domain.RelayResult{TxHash: "abc"}}
			limiter := &limiterStub{count: 1}
			router := newTestRouter(relay, nil, RouterOptions{JWKSURL: jwks.URL, Limiter: limiter, RelayRateLimitPerMinute: 30})

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := doRequest(t, router, http.MethodPost, "/relay/withdraw", `{"signedDelegateBase64":"AAAA"}`, headers)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == http.StatusOK && (len(limiter.subjects) != 1 || limiter.subjects[0] != "user_1") {
				t.Fatalf("expected the token subject to key the limiter, got %v", limiter.subjects)
			}
		})
	}
}

func TestParseRSAPublicKeyRejectsBadExponent(t *testing.T) {
	if _, err := parseRSAPublicKey("AQAB", ""); err == nil {
		t.Fatal("expected an empty exponent to be rejected")
	}
	if _, err := parseRSAPublicKey("!!", "AQAB"); err == nil {
		t.Fatal("expected a non-base64url modulus to be rejected")
	}
}
