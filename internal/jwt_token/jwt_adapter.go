package jwttoken

import (
	authmw "memberportal/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes the service through the auth middleware port.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	member, err := claims.Member()
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{Member: member, JTI: claims.ID}, nil
}
