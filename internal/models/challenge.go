package models

// Challenge describes a container-backed challenge. Rows are owned by the
// authoring side (the catalog importer or an operator); the lifecycle
// orchestrator only reads them.
type Challenge struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"size:128;not null;uniqueIndex"`
	Type           string `gorm:"size:32;default:container"`
	Image          string `gorm:"size:255;not null"`
	Port           int    `gorm:"not null"`
	Command        string `gorm:"type:text"`
	Volumes        string `gorm:"type:text"`
	ConnectionInfo string `gorm:"size:255"`

	// Scoring parameters, stored for the scoring subsystem. The decay
	// curve itself is computed elsewhere.
	Initial int `gorm:"default:0"`
	Minimum int `gorm:"default:0"`
	Decay   int `gorm:"default:0"`
}

// Solve records a correct submission against a challenge.
type Solve struct {
	ID          uint  `gorm:"primaryKey;autoIncrement"`
	ChallengeID uint  `gorm:"not null;index"`
	UserID      uint  `gorm:"index"`
	TeamID      uint  `gorm:"index"`
	SolvedAt    int64 `gorm:"not null"`

	Challenge *Challenge `gorm:"foreignKey:ChallengeID"`
}
