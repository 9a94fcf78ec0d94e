package util

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// ContentKey derives a content-addressed object key for data: nine
// lowercase base32 characters of its SHA-256, sharded by the first two,
// under an optional prefix.
func ContentKey(prefix string, data []byte, ext string) string {
	hash := sha256.Sum256(data)
	encoded := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hash[:]))[:9]

	key := fmt.Sprintf("%s/%s%s", encoded[:2], encoded[2:], ext)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
