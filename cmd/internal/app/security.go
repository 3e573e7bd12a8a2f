package app

import (
	"errors"
	"fmt"

	"flussauth/cmd/security/apikey"
	"flussauth/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy and returns
// the management key verifier and the session fingerprinter.
//
// Fail-fast: a configured but unusable secret stops startup instead of
// silently degrading to an open API or unkeyed fingerprints.
func ValidateSecurityConfig(cfg Config) (apikey.Verifier, token.Fingerprinter, error) {
	keys, err := apikey.NewVerifier(cfg.APIKey, cfg.APIKeyHash)
	if err != nil {
		return apikey.Verifier{}, token.Fingerprinter{}, fmt.Errorf("security policy: FLUSSAUTH_API_KEY_HASH: %w", err)
	}
	if cfg.RequireAPIKey && !keys.Enabled() {
		return apikey.Verifier{}, token.Fingerprinter{}, errors.New("security policy: FLUSSAUTH_REQUIRE_API_KEY=true but no FLUSSAUTH_API_KEY or FLUSSAUTH_API_KEY_HASH is set")
	}

	fp, err := token.FingerprinterFromEnv()
	if err != nil {
		if errors.Is(err, token.ErrFingerprintKeyTooShort) {
			return apikey.Verifier{}, token.Fingerprinter{}, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.FingerprintKeyEnv, token.MinFingerprintKeyBytes)
		}
		return apikey.Verifier{}, token.Fingerprinter{}, err
	}
	return keys, fp, nil
}
