package security

import (
	"crypto/rand"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ChallengeLength is the length of the random text a device must sign.
const ChallengeLength = 64

// Device identifiers are "<origin>:<64 alphanumeric chars>" where origin
// names the client platform class.
var deviceIDPattern = regexp.MustCompile(`^(ks|mobile|web):[a-zA-Z0-9]{64}$`)

const challengeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ValidDeviceID reports whether deviceID matches the required format.
func ValidDeviceID(deviceID string) bool {
	return deviceIDPattern.MatchString(deviceID)
}

// ValidSessionID reports whether sessionID is a well-formed UUID string.
func ValidSessionID(sessionID string) bool {
	_, err := uuid.Parse(sessionID)
	return err == nil
}

// NewSessionID mints a globally unique session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewChallengeText returns a fresh random challenge. The text is the
// anti-replay secret of the authentication protocol, so it is drawn from
// crypto/rand rather than a seeded generator.
func NewChallengeText() (string, error) {
	return randomAlphanumeric(ChallengeLength)
}

func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			// Reject bytes outside the largest multiple of the charset
			// size to keep the distribution uniform.
			if int(b) >= 256-(256%len(challengeCharset)) {
				continue
			}
			out = append(out, challengeCharset[int(b)%len(challengeCharset)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
