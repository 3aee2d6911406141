package flow

import "github.com/marcogenualdo/sso-relay/pkg/security"

// tokenBytes gives 256 bits of entropy; the encoded token is 43 characters.
const tokenBytes = 32

// NewToken returns a fresh correlation token.
func NewToken() (string, error) {
	return security.GenerateRandomString(tokenBytes)
}

func shortToken(token string) string {
	return security.Truncate(token, 8)
}
