package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// Digest is a deterministic one-way hash of a plaintext password,
// compared for equality against the stored hash.
type Digest func(plaintext string) string

// MD5Digest is the default digest, matching how existing admin accounts
// were provisioned. Swap it via WithDigest when migrating to a stronger
// primitive.
func MD5Digest(plaintext string) string {
	sum := md5.Sum([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// digestEqual compares two digest strings in constant time.
func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
