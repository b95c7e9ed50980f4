package lobby

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CodeAlphabet has 32 symbols and leaves out 0/O and 1/I.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of symbols in a lobby code.
const CodeLength = 4

// MaxCodeAttempts bounds the retry loop in Create.
const MaxCodeAttempts = 10

// GenerateLobbyCode draws CodeLength symbols uniformly from CodeAlphabet.
// len(CodeAlphabet) divides 256, so masking a random byte is unbiased.
func GenerateLobbyCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// GenerateHostID returns a bearer token for the lobby host.
func GenerateHostID() string {
	return "host_" + uuid.NewString()
}

// GeneratePlayerID returns a bearer token for a player.
func GeneratePlayerID() string {
	return "player_" + uuid.NewString()
}

// NormalizeCode upper-cases and trims a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is CodeLength uppercase alphanumerics.
// Ambiguous glyphs are accepted here so that a mistyped code reports "not
// found" rather than "malformed".
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
