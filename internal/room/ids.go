package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"

	localRoomPrefix = "LOCAL"
)

// Variant selects between the two relay flavours: the public server and the
// loopback-only server used for two windows on one machine.
type Variant string

const (
	VariantPublic Variant = "public"
	VariantLocal  Variant = "local"
)

// ParseVariant maps a config value to a Variant. Anything but "local" is public.
func ParseVariant(s string) Variant {
	if strings.EqualFold(strings.TrimSpace(s), string(VariantLocal)) {
		return VariantLocal
	}
	return VariantPublic
}

// NewRoomID returns a room identifier in the variant's format: six uppercase
// alphanumerics, or LOCAL followed by four.
func (v Variant) NewRoomID() (string, error) {
	if v == VariantLocal {
		code, err := randomCode(upperAlnum, 4)
		if err != nil {
			return "", err
		}
		return localRoomPrefix + code, nil
	}
	return randomCode(upperAlnum, 6)
}

// DefaultName is the display name given to the n-th participant (1-based) who
// joined without one.
func (v Variant) DefaultName(n int) string {
	if v == VariantLocal {
		if n == 2 {
			return "Player 2"
		}
		return "Player 1"
	}
	return "Player"
}

// RepliesToUnknownTypes reports whether unrecognized messages get an error reply.
// The local server only logs them.
func (v Variant) RepliesToUnknownTypes() bool {
	return v != VariantLocal
}

// NewPlayerID returns a seven character lowercase participant identifier.
func NewPlayerID() (string, error) {
	return randomCode(lowerAlnum, 7)
}

func randomCode(charset string, n int) (string, error) {
	code := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
