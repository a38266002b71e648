package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

// Claims represents the JWT claims of a member access token.
type Claims struct {
	BusinessGroup   string `json:"business_group"`
	ReferenceNumber string `json:"reference_number"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// GenerateAccessToken issues an HS256 token for the member. The portal
// front end normally mints these; the server uses it for operator tooling
// and tests.
func (s *JWTService) GenerateAccessToken(member id.Member, expiresIn time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		BusinessGroup:   member.BusinessGroup.String(),
		ReferenceNumber: member.ReferenceNumber.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Member validates the identity carried by the claims.
func (c *Claims) Member() (id.Member, error) {
	m, err := id.ParseMember(c.BusinessGroup, c.ReferenceNumber)
	if err != nil {
		return id.Member{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token carries an invalid member")
	}
	return m, nil
}
