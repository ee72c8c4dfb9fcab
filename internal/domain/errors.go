package domain

import "errors"

var (
	ErrInvalidProof        = errors.New("invalid_proof")
	ErrExpiredCredential   = errors.New("expired_credential")
	ErrNotConfigured       = errors.New("not_configured")
	ErrNotFound            = errors.New("not_found")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
)

// Kind returns the taxonomy name of err, or "internal" when err is outside it.
func Kind(err error) string {
	for _, k := range []error{ErrInvalidProof, ErrExpiredCredential, ErrNotConfigured, ErrNotFound, ErrConflict, ErrUpstreamUnavailable} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal"
}
