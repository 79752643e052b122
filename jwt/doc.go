// Package jwt encodes and verifies the access and refresh tokens handed to
// clients. Tokens are compact JWS strings whose header carries the signing
// key id, so a verifier resolves the key before checking the signature.
//
// Decoding fails closed: claims, including expiry, are only inspected after
// the signature verifies. Every failure collapses to one of [ErrMalformed],
// [ErrSignatureInvalid], [ErrExpired] or [ErrKeyUnavailable].
package jwt
