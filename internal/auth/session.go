// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenMismatch is returned when a valid token was issued for another seat.
var ErrTokenMismatch = errors.New("resume token does not match room or player")

// ResumeClaims binds a participant identifier to the room it was issued in.
type ResumeClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies resume tokens. A token is handed out with every joined
// reply and proves, on rejoin, that the caller owns the seat it asks for.
//
// Tokens carry no expiry: a seat can be reclaimed for as long as its room exists,
// and the registry bounds what is restored by the time the participant left.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewIssuer generates a fresh ed25519 key pair at runtime. Tokens do not survive a
// restart, and neither do rooms.
func NewIssuer() (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub}, nil
}

// NewIssuerFromPath reads ed25519 private/public keys from file.
func NewIssuerFromPath(privatePath, publicPath string) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 key sizes %d/%d", len(privateKeyData), len(publicKeyData))
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
	}, nil
}

// Issue creates a signed token with "sub" = playerID and "room" = roomID.
func (i *Issuer) Issue(roomID, playerID string) (string, error) {
	claims := ResumeClaims{
		Room: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Verify checks the token signature, then that it was issued for exactly this
// room and player.
func (i *Issuer) Verify(tokenString, roomID, playerID string) error {
	var claims ResumeClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return fmt.Errorf("invalid token")
	}
	if claims.Room != roomID || claims.Subject != playerID {
		return ErrTokenMismatch
	}
	return nil
}
