package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/victoryunusa/truetab-api-sub000/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// walletClaims is the JWT body. BranchID is empty for brand-level wallets.
type walletClaims struct {
	BrandID  string `json:"brand_id"`
	BranchID string `json:"branch_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate creates a signed JWT for the given caller.
func (s *JWTTokenService) Generate(claims ports.TokenClaims) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	body := walletClaims{
		BrandID: claims.BrandID.String(),
		Role:    claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if claims.BranchID != nil {
		body.BranchID = claims.BranchID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, body)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	body := &walletClaims{}
	token, err := jwt.ParseWithClaims(tokenString, body, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	brandID, err := uuid.Parse(body.BrandID)
	if err != nil {
		return nil, fmt.Errorf("invalid brand ID in token: %w", err)
	}

	claims := &ports.TokenClaims{
		Subject: body.Subject,
		BrandID: brandID,
		Role:    body.Role,
	}
	if body.BranchID != "" {
		branchID, err := uuid.Parse(body.BranchID)
		if err != nil {
			return nil, fmt.Errorf("invalid branch ID in token: %w", err)
		}
		claims.BranchID = &branchID
	}
	switch claims.Role {
	case ports.RoleMerchant, ports.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	return claims, nil
}
