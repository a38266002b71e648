package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

var (
	member    = id.Member{BusinessGroup: "RBS", ReferenceNumber: "1234567"}
	expiresIn = time.Hour
)

func newService() *JWTService {
	return NewJWTService("test-signing-key", "test-issuer", "test-audience")
}

func Test_GenerateAccessToken(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateAccessToken(member, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "RBS", claims.BusinessGroup)
	assert.Equal(t, "1234567", claims.ReferenceNumber)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)

	got, err := claims.Member()
	require.NoError(t, err)
	assert.Equal(t, member, got)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := newService().ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", err.Error())
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateAccessToken(member, -time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", err.Error())
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	token, err := NewJWTService("test-signing-key", "test-issuer", "other").GenerateAccessToken(member, expiresIn)
	require.NoError(t, err)

	_, err = newService().ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsOtherSigningMethods(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{BusinessGroup: "RBS", ReferenceNumber: "1"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService().ValidateToken(raw)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter_RejectsInvalidMember(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateAccessToken(id.Member{BusinessGroup: "toolong", ReferenceNumber: "x"}, expiresIn)
	require.NoError(t, err)

	_, err = NewJWTServiceAdapter(svc).ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter_MapsClaims(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateAccessToken(member, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(svc).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, member, claims.Member)
	assert.NotEmpty(t, claims.JTI)
}
