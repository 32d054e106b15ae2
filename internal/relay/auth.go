package relay

import (
	"errors"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the field device a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	Device string `json:"device"`
}

// GenerateToken signs an HS256 token for device that expires after ttl.
func GenerateToken(device string, secretKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Device: device,
	})

	return token.SignedString(secretKey)
}

// DeviceFromToken validates tokenString and returns the device it names.
// An expired token yields common.ErrTokenExpired.
func DeviceFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	if !token.Valid || claims.Device == "" {
		return "", ErrInvalidToken
	}

	return claims.Device, nil
}
