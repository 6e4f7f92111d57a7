// Package digestauth applies RFC 2617 digest authentication to
// outgoing SIP requests, grounded on how flowpbx's outbound trunk auth
// and diago's digest_auth.go both use github.com/icholy/digest:
// parse the challenge off WWW-Authenticate/Proxy-Authenticate, compute
// a response with digest.Digest, and render it back with Credentials'
// own String() method rather than hand-formatting the header.
package digestauth

import (
	"fmt"

	"github.com/icholy/digest"
)

// ChallengeHeaderFor returns the header name used to carry a challenge
// for the given response status, and the header name the retried
// request's credentials go in.
func ChallengeHeaderFor(statusCode int) (challengeHeader, authHeader string) {
	if statusCode == 407 {
		return "Proxy-Authenticate", "Proxy-Authorization"
	}
	return "WWW-Authenticate", "Authorization"
}

// Authorize parses challengeValue (the WWW-Authenticate/Proxy-Authenticate
// header value from a 401/407) and returns the Authorization header
// value to attach to a retried request for method/uri authenticated as
// username/password.
func Authorize(challengeValue, method, uri, username, password string) (string, error) {
	chal, err := digest.ParseChallenge(challengeValue)
	if err != nil {
		return "", fmt.Errorf("digestauth: parsing challenge: %w", err)
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      uri,
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("digestauth: computing digest: %w", err)
	}

	return cred.String(), nil
}
