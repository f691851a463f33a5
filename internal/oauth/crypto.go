package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomString returns a base64url-encoded random string built from length
// bytes of entropy.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// newAuthCode mints an authorization code value.
func newAuthCode() (string, error) {
	s, err := RandomString(16)
	if err != nil {
		return "", err
	}
	return "bmcp_" + s, nil
}

// newAccessToken mints an opaque bearer token value.
func newAccessToken() (string, error) {
	s, err := RandomString(32)
	if err != nil {
		return "", err
	}
	return "bmcp_at_" + s, nil
}

// newRefreshToken mints a refresh token value.
func newRefreshToken() (string, error) {
	s, err := RandomString(32)
	if err != nil {
		return "", err
	}
	return "bmcp_rt_" + s, nil
}
