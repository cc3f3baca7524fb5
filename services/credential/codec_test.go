package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	codec, err := NewCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

func TestNewCodec_RequiresSecret(t *testing.T) {
	_, err := NewCodec(nil)
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 750_000_000, time.UTC)}
	codec := newTestCodec(t, clock)

	cred, err := codec.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, cred.Token)
	assert.Equal(t, "user-1", cred.Subject)
	assert.Equal(t, PurposeAuth, cred.Purpose)
	assert.NotEmpty(t, cred.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), cred.ExpiresAt)

	verified, err := codec.Verify(cred.Token, PurposeAuth)
	require.NoError(t, err)
	assert.True(t, verified.ExpiresAt.Equal(cred.ExpiresAt))
	assert.Equal(t, cred.ID, verified.ID)
}

func TestSign_RejectsBadInput(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{t: time.Now()})

	_, err := codec.Sign("", PurposeAuth, time.Hour)
	assert.Error(t, err)

	_, err = codec.Sign("user-1", PurposeAuth, 0)
	assert.Error(t, err)
}

func TestSign_SameSubjectSameSecondDiffers(t *testing.T) {
	codec := newTestCodec(t, &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})

	a, err := codec.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)
	b, err := codec.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
}

func TestSign_DeterministicWithFixedInputs(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	newCodec := func() *Codec {
		c, err := NewCodec(testSecret, WithClock(clock.Now), WithIDGenerator(func() string { return "fixed" }))
		require.NoError(t, err)
		return c
	}

	a, err := newCodec().Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)
	b, err := newCodec().Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, a.Token, b.Token)
}

func TestVerify_Rejections(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clock)

	valid, err := codec.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	other, err := NewCodec([]byte("another-secret-another-secret-xx"), WithClock(clock.Now))
	require.NoError(t, err)
	foreign, err := other.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	wrongPurpose, err := codec.Sign("user-1", "refresh", time.Hour)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Purpose: PurposeAuth,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose:          PurposeAuth,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose: PurposeAuth,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	parts := strings.Split(valid.Token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-credential"},
		{"tampered payload", tampered},
		{"foreign secret", foreign.Token},
		{"wrong purpose", wrongPurpose.Token},
		{"alg none", noneToken},
		{"missing expiry", noExpiry},
		{"missing subject", noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				verified, err := codec.Verify(tt.token, PurposeAuth)
				assert.Nil(t, verified)
				assert.True(t, errors.Is(err, ErrInvalid))
			})
		})
	}
}

func TestVerify_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clock)

	cred, err := codec.Sign("user-1", PurposeAuth, time.Hour)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = codec.Verify(cred.Token, PurposeAuth)
	assert.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = codec.Verify(cred.Token, PurposeAuth)
	assert.ErrorIs(t, err, ErrInvalid)
}
