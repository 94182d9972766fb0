package domain

import "time"

// DevicePublicKey pins a device's credential material on first use.
// Once written the key is never updated by the gateway; rotation is an
// administrative operation outside this service.
type DevicePublicKey struct {
	DeviceID  string    `gorm:"primaryKey;size:128" json:"device_id"`
	PublicKey string    `gorm:"type:text;not null" json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}
