// Package credential signs and verifies the session credentials handed to
// clients. A credential is an HS256 JWT carrying the subject, a purpose tag,
// an absolute expiry and a random id. It proves authenticity only; whether a
// session is still live is decided by the session store.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PurposeAuth tags credentials that represent a login session
const PurposeAuth = "auth"

// ErrInvalid is returned for any credential that fails verification
var ErrInvalid = errors.New("invalid credential")

// Claims is the payload embedded in a credential
type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Credential is a freshly signed token together with the values embedded in it
type Credential struct {
	Token     string
	Subject   string
	Purpose   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verified holds the claims of a credential that passed verification
type Verified struct {
	Subject   string
	Purpose   string
	ID        string
	ExpiresAt time.Time
}

// Codec signs and verifies credentials with a process-wide secret
type Codec struct {
	secret []byte
	now    func() time.Time
	newID  func() string
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIDGenerator overrides the credential id source
func WithIDGenerator(newID func() string) Option {
	return func(c *Codec) {
		c.newID = newID
	}
}

// NewCodec creates a codec. The secret must be non-empty.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("credential secret is required")
	}

	c := &Codec{
		secret: secret,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a credential for subject that expires ttl from now.
// The returned ExpiresAt is exactly the expiry embedded in the token.
func (c *Codec) Sign(subject, purpose string, ttl time.Duration) (*Credential, error) {
	if subject == "" {
		return nil, fmt.Errorf("credential subject is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("credential ttl must be positive, got %s", ttl)
	}

	now := c.now().UTC()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	id := c.newID()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	return &Credential{
		Token:     signed,
		Subject:   subject,
		Purpose:   purpose,
		ID:        id,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Verify checks the signature, algorithm, expiry and purpose of token.
// Every failure is reported as ErrInvalid.
func (c *Codec) Verify(token, purpose string) (*Verified, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !parsed.Valid || claims.Subject == "" || claims.Purpose != purpose {
		return nil, ErrInvalid
	}

	return &Verified{
		Subject:   claims.Subject,
		Purpose:   claims.Purpose,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
