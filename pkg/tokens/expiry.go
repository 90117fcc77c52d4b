package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

// DecodeExpiry reads the exp claim of an access token and returns it in
// milliseconds since the Unix epoch. Only the payload segment is decoded;
// the header and signature are not looked at.
func DecodeExpiry(accessToken string) (int64, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: token has %d segments", ErrMalformedToken, len(parts))
	}

	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: decode payload: %w", ErrMalformedToken, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, fmt.Errorf("%w: decode payload: %w", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if exp == nil {
		return 0, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	// NumericDate drops sub-second precision; keep it from the raw claim.
	if raw, ok := claims["exp"].(float64); ok && !math.IsNaN(raw) && !math.IsInf(raw, 0) {
		return int64(math.Round(raw * 1000)), nil
	}
	return exp.UnixMilli(), nil
}

func ExpiryTime(accessToken string) (time.Time, error) {
	ms, err := DecodeExpiry(accessToken)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
