// Package jwt issues and verifies the access and refresh tokens of the identity
// engine. Each token kind has its own Manager and key material; a token signed for
// one kind never verifies as the other.
package jwt
