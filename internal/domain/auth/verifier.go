package auth

import (
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Verify checks an access token signature against every known key.
// The kid in the token header picks the key.
func (ks *KeyStore) Verify(tokenString string) (*AccessTokenClaims, error) {
	verifiedToken, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(ks.JWKS(), jws.WithInferAlgorithmFromKey(true)),
	)
	if err != nil {
		return nil, err
	}

	return &AccessTokenClaims{Token: verifiedToken}, nil
}
