package models

// Setting is one key/value configuration row. Defaults are seeded exactly
// once at bootstrap; values change only through the bulk settings update.
type Setting struct {
	Key   string `gorm:"primaryKey;size:128"`
	Value string `gorm:"type:text"`
}
