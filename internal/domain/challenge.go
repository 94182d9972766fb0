package domain

// DeviceChallenge is an outstanding, unconsumed signing challenge. At most
// one exists per device; issuing a new one supersedes it, and successful
// session creation consumes it.
type DeviceChallenge struct {
	DeviceID      string `json:"device_id"`
	ChallengeText string `json:"challenge_text"`
}
