// Package password implements the secret hasher: argon2id by default, bcrypt as
// an alternative, behind a single [Hasher] interface.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] verifies hashes of either scheme and reports [Chain.NeedsUpgrade] when a
// stored hash was produced by the other scheme or with weaker parameters, so the
// engine can rehash on the next successful login.
//
// This package owns hashing and verification only; it never logs or stores
// plaintext.
package password
