package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotRefreshToken = errors.New("not a refresh token")

func RefreshClaimsFromToken(TokenStr string, RefreshSecret []byte, opts ...jwt.ParserOption) (*RefreshClaims, error) {
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(TokenStr, &claims, hs256Key(RefreshSecret), opts...)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if claims.Type != RefreshType {
		return nil, ErrNotRefreshToken
	}
	return &claims, nil
}

func SignRefreshToken(subject, jti string, exp time.Time, RefreshSecret []byte) (string, error) {
	claims := RefreshClaims{
		Type: RefreshType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(RefreshSecret)
}
