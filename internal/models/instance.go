package models

// Instance is one running container granted to an owner for a challenge.
// The primary key is the runtime-assigned container ID, so a row exists
// only after the runtime accepted the create call.
type Instance struct {
	InstanceID  string `gorm:"primaryKey;size:128"`
	ChallengeID uint   `gorm:"not null;index:idx_instances_presence"`
	UserID      uint   `gorm:"index:idx_instances_presence;index"`
	TeamID      uint   `gorm:"index:idx_instances_presence;index"`
	Port        int    `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null"`
	ExpiresAt   int64  `gorm:"not null;index"`

	Challenge *Challenge `gorm:"foreignKey:ChallengeID"`
}
