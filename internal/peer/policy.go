package peer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Policy decides whether an inbound invitation is accepted.
type Policy func(inv *Invitation) bool

// AcceptAll accepts every invitation. It is the default: sessions are meant for
// a trusted local network.
func AcceptAll(*Invitation) bool { return true }

const tokenIssuer = "simonsays"

// SignInvitation issues an HS256 token naming from as subject and to as audience.
// A TokenPolicy on the receiving side with the same secret accepts it until ttl runs out.
func SignInvitation(secret []byte, from, to ID, ttl time.Duration) ([]byte, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   string(from),
		Audience:  jwt.ClaimStrings{string(to)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	ss, err := tok.SignedString(secret)
	if err != nil {
		return nil, err
	}
	return []byte(ss), nil
}

// TokenContext returns an invitation-context func that signs with secret.
func TokenContext(secret []byte, ttl time.Duration) func(from, to ID) ([]byte, error) {
	return func(from, to ID) ([]byte, error) {
		return SignInvitation(secret, from, to, ttl)
	}
}

// TokenPolicy accepts only invitations carrying a valid token from SignInvitation
// whose subject is the inviter and whose audience is the local peer.
func TokenPolicy(secret []byte) Policy {
	return func(inv *Invitation) bool {
		if len(inv.Context) == 0 {
			return false
		}
		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(string(inv.Context), claims,
			func(t *jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithSubject(string(inv.From)),
			jwt.WithAudience(string(inv.To)),
			jwt.WithExpirationRequired(),
		)
		return err == nil && tok.Valid
	}
}
