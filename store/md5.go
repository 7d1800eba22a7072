package store

import (
	"crypto/md5"
	"encoding/hex"
)

// md5Hex returns the lowercase hex MD5 digest of s. Used for cov
// hashing (serialized coverage text); dedup only, not a security
// boundary.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes is the byte-slice equivalent of md5Hex, for hashing raw
// bytes such as file contents rather than a string built in memory.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
