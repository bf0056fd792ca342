package shared

import "fmt"

// SessionKey builds the redis key holding one role-scoped session.
func SessionKey(prefix, id string) string {
	return fmt.Sprintf("session:%s:%s", prefix, id)
}

// VerificationKey builds the redis key holding an admin's pending code.
func VerificationKey(adminID string) string {
	return fmt.Sprintf("verify:admin:%s", adminID)
}
