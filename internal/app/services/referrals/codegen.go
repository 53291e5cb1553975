package referrals

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// codeAlphabet omits ambiguous characters (0/O, 1/I/L) so codes survive
// being read aloud or retyped.
const codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

const codeLength = 8

// deriveCode produces a short alphanumeric referral token from the user's
// identity and a time component. Derivation alone does not guarantee
// uniqueness; callers must persist against the uniqueness constraint and
// retry on collision.
func deriveCode(userID string, attempt int, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", userID, now.UnixNano(), attempt)))

	code := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		code[i] = codeAlphabet[int(sum[i])%len(codeAlphabet)]
	}
	return string(code)
}
