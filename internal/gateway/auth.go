package gateway

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// participantClaims are the JWT claims issued to contest participants.
type participantClaims struct {
	Alias string `json:"alias,omitempty"`
	jwt.RegisteredClaims
}

// parseToken validates a participant token and returns the participant id
// and display alias.
func parseToken(token string, secret []byte) (int64, string, error) {
	claims := &participantClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return 0, "", err
	}
	if !parsed.Valid {
		return 0, "", fmt.Errorf("token is invalid")
	}
	participantID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || participantID <= 0 {
		return 0, "", fmt.Errorf("token subject is not a participant id")
	}
	return participantID, claims.Alias, nil
}

// IssueToken signs a participant token, used by the admin CLI and tests.
func IssueToken(participantID int64, alias string, secret []byte) (string, error) {
	claims := &participantClaims{
		Alias: alias,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(participantID, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
