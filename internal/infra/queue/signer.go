package queue

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	signatureIssuer = "paperscore-queue"
	signatureTTL    = 5 * time.Minute
	signatureLeeway = 30 * time.Second
)

// ErrNoSigningKey is returned when no current key is configured.
var ErrNoSigningKey = errors.New("queue signing key is required")

// deliveryClaims binds a token to one message body and one endpoint path.
type deliveryClaims struct {
	BodyHash string `json:"body"`
	jwt.RegisteredClaims
}

// Signer signs deliveries with the current key and accepts the current or the
// next key, so keys can be rotated without dropping in-flight messages.
type Signer struct {
	current []byte
	next    []byte
	now     func() time.Time
}

func NewSigner(current, next string) (*Signer, error) {
	if current == "" {
		return nil, ErrNoSigningKey
	}
	s := &Signer{current: []byte(current), now: time.Now}
	if next != "" {
		s.next = []byte(next)
	}
	return s, nil
}

// endpointPath is the subject of a delivery token. Only the path is bound so a
// proxy rewriting scheme or host does not break verification.
func endpointPath(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign returns the token sent in the Queue-Signature header.
func (s *Signer) Sign(target, messageID string, body []byte) (string, error) {
	now := s.now()
	claims := deliveryClaims{
		BodyHash: bodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   endpointPath(target),
			ID:        messageID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(signatureTTL)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.current)
	if err != nil {
		return "", fmt.Errorf("sign delivery: %w", err)
	}
	return tok, nil
}

// Verify implements jobs.SignatureVerifier. target is the URL or path the
// delivery arrived at; a token signed for another endpoint is rejected.
func (s *Signer) Verify(signature, target string, body []byte) bool {
	if signature == "" {
		return false
	}
	path := endpointPath(target)
	if s.verifyWith(s.current, signature, path, body) {
		return true
	}
	return s.next != nil && s.verifyWith(s.next, signature, path, body)
}

func (s *Signer) verifyWith(key []byte, signature, path string, body []byte) bool {
	var claims deliveryClaims
	tok, err := jwt.ParseWithClaims(signature, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithSubject(path),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(signatureLeeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return false
	}
	return claims.BodyHash == bodyHash(body)
}
