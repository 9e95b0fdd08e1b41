// Package codec packs a timer's state into the short ASCII token carried in
// share links, and reads it back.
package codec

import (
	"errors"
	"math"
	"strings"
)

// Alphabet is the 64-symbol digit set, most significant digit first. It is
// URL-safe and must never change: previously shared links depend on it.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var ErrInvalidDigit = errors.New("invalid base64 digit")

// EncodeInt writes n in base 64 without padding. Zero and negative values
// encode to the empty string, which decodes back to zero.
func EncodeInt(n int64) string {
	if n <= 0 {
		return ""
	}
	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%64]
		n /= 64
	}
	return string(buf[i:])
}

// EncodeFloat floors f and encodes it. NaN, infinities and values outside
// the int64 range encode to the empty string.
func EncodeFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 {
		return ""
	}
	return EncodeInt(int64(math.Floor(f)))
}

// DecodeInt reads a base-64 number. Characters outside the alphabet count
// as digit -1 and are folded into the result; links minted by older clients
// rely on this never failing.
func DecodeInt(s string) int64 {
	var res int64
	for _, r := range s {
		res = res*64 + int64(strings.IndexRune(Alphabet, r))
	}
	return res
}

// DecodeIntStrict is DecodeInt that rejects characters outside the alphabet.
func DecodeIntStrict(s string) (int64, error) {
	var res int64
	for _, r := range s {
		digit := strings.IndexRune(Alphabet, r)
		if digit < 0 {
			return 0, ErrInvalidDigit
		}
		res = res*64 + int64(digit)
	}
	return res, nil
}
