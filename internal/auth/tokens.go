package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Cashiers authenticate with HS256 bearer tokens whose subject is the
// employee id. Tokens are minted by the staff back office; Issue exists for
// tooling and tests.
type Tokens struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

const algorithm = jwa.HS256

// Issue signs a token for the employee.
func (t Tokens) Issue(employeeID string, ttl time.Duration) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("auth: secret not configured")
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return "", errors.New("auth: employee id is required")
	}
	now := t.now()
	b := jwt.NewBuilder().
		Subject(employeeID).
		IssuedAt(now).
		NotBefore(now.Add(-t.ClockSkew)).
		Expiration(now.Add(ttl))
	if t.Issuer != "" {
		b = b.Issuer(t.Issuer)
	}
	if t.Audience != "" {
		b = b.Audience([]string{t.Audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(algorithm, t.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// EmployeeID verifies the token and returns its subject.
func (t Tokens) EmployeeID(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", unauthorized("missing token", nil)
	}
	if len(t.Secret) == 0 {
		return "", errors.New("auth: secret not configured")
	}
	alg, err := tokenAlgorithm(token)
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	if alg != algorithm {
		return "", unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", alg))
	}

	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, t.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized("invalid token", err)
	}
	opts := []jwt.ValidateOption{jwt.WithClock(jwt.ClockFunc(t.now))}
	if t.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(t.ClockSkew))
	}
	if t.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.Audience))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		return "", unauthorized("invalid token", err)
	}
	subject := strings.TrimSpace(parsed.Subject())
	if subject == "" {
		return "", unauthorized("invalid token", errors.New("token has no subject"))
	}
	return subject, nil
}

// tokenAlgorithm reads the alg header, rejecting unsigned and mixed tokens.
func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var alg jwa.SignatureAlgorithm
	for _, sig := range sigs {
		headers := sig.ProtectedHeaders()
		if headers == nil || headers.Algorithm() == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if headers.Algorithm() == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if alg != "" && alg != headers.Algorithm() {
			return "", errors.New("auth: mixed token algorithms detected")
		}
		alg = headers.Algorithm()
	}
	return alg, nil
}

func unauthorized(msg string, err error) error {
	return common.NewAppError("UNAUTHORIZED", msg, http.StatusUnauthorized, err)
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
