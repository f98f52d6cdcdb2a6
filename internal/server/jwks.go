package server

import (
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
)

// handleJWKS publishes the service's signing public key.
//
// Verification of record artifacts does not depend on this endpoint (the
// certificate chain travels in the signature), but publishing the key lets
// other members cross-check the kid in sealed records.
//
//	@Summary	JWKS for the service signing key
//	@Tags		Common
//	@Produce	json
//	@Success	200
//	@Router		/.well-known/jwks.json [get]
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	publicKey, err := s.signer.PublicKey()
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	key, err := crypto.PublicKeyToJWK(publicKey, s.signer.KeyID())
	if err != nil {
		RespondWithError(w, r, provenance.WrapInternalError(err, "failed to build JWK"))
		return
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		RespondWithError(w, r, provenance.WrapInternalError(err, "failed to build JWK set"))
		return
	}

	RespondWithJSON(w, http.StatusOK, set)
}
