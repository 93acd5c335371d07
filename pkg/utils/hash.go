package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// HashString returns the hex md5 of the input. Used for cache keys and
// content ids, not for anything security sensitive.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashFields hashes several values joined under a separator so composite
// cache keys stay stable regardless of caller formatting.
func HashFields(fields ...string) string {
	return HashString(strings.Join(fields, "\x1f"))
}
