package testutil

import (
	"fmt"
	"math/rand"
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSlug returns a short random lowercase identifier, useful for
// generating unique tenant IDs and names in tests.
func RandomSlug(prefix string) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = slugAlphabet[rand.Intn(len(slugAlphabet))]
	}
	return fmt.Sprintf("%s-%s", prefix, string(b))
}

// RandomEmail returns a unique email address for test user registration.
func RandomEmail() string {
	return fmt.Sprintf("%s@example.test", RandomSlug("user"))
}
