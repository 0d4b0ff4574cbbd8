package core

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const (
	// UnambiguousAlphabet excludes characters that are easily confused when read aloud or copied by hand (0/O, 1/I/L).
	UnambiguousAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	lowerChars   = "abcdefghjkmnpqrstuvwxyz"
	upperChars   = "ABCDEFGHJKMNPQRSTUVWXYZ"
	digitChars   = "23456789"
	specialChars = "@#$%&*!?"
)

// RandomString returns a cryptographically random string of length n drawn from alphabet.
func RandomString(alphabet string, n int) (string, error) {
	if n <= 0 || alphabet == "" {
		return "", errors.New("invalid random string parameters")
	}
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// RandomPassword generates a temporary password of length n (min 8) containing
// at least one lowercase, one uppercase, one digit and one special character.
func RandomPassword(n int) (string, error) {
	if n < 8 {
		n = 8
	}
	pwd := make([]byte, 0, n)
	for _, set := range []string{lowerChars, upperChars, digitChars, specialChars} {
		s, err := RandomString(set, 1)
		if err != nil {
			return "", err
		}
		pwd = append(pwd, s...)
	}
	rest, err := RandomString(lowerChars+upperChars+digitChars+specialChars, n-len(pwd))
	if err != nil {
		return "", err
	}
	pwd = append(pwd, rest...)

	// shuffle (Fisher-Yates)
	for i := len(pwd) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		pwd[i], pwd[j.Int64()] = pwd[j.Int64()], pwd[i]
	}
	return string(pwd), nil
}
