package domain

import "time"

// DeviceType is the platform enumeration carried on session creation.
type DeviceType int32

const (
	DeviceTypeMobile DeviceType = iota
	DeviceTypeWeb
	DeviceTypeKeyserver
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeMobile:
		return "mobile"
	case DeviceTypeWeb:
		return "web"
	case DeviceTypeKeyserver:
		return "keyserver"
	default:
		return "unknown"
	}
}

func (t DeviceType) Valid() bool {
	return t >= DeviceTypeMobile && t <= DeviceTypeKeyserver
}

// DeviceSession is an authenticated, addressable device connection
// context. SessionID is server-minted and immutable; IsOnline is the only
// field mutated after creation.
type DeviceSession struct {
	SessionID   string     `gorm:"primaryKey;size:64" json:"session_id"`
	DeviceID    string     `gorm:"index;size:128;not null" json:"device_id"`
	PublicKey   string     `gorm:"type:text;not null" json:"public_key"`
	NotifyToken string     `gorm:"size:512" json:"notify_token"`
	DeviceType  DeviceType `gorm:"not null" json:"device_type"`
	AppVersion  string     `gorm:"size:64" json:"app_version"`
	DeviceOS    string     `gorm:"size:64" json:"device_os"`
	IsOnline    bool       `gorm:"not null;default:false" json:"is_online"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
