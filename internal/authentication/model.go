package authentication

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"

	"github.com/mehmetcc/school-auth-service/internal/person"
)

// RefreshTokenRecord is one issued refresh token. RefreshToken holds the SHA-256 digest of
// the signed token, never the token itself. IsActive only ever moves from true to false.
type RefreshTokenRecord struct {
	gorm.Model
	PersonID     uint           `gorm:"index;not null"`
	Person       *person.Person `gorm:"constraint:OnDelete:CASCADE"`
	RefreshToken string         `gorm:"uniqueIndex;not null"`
	ExpiresAt    time.Time      `gorm:"index;not null"`
	IsActive     bool           `gorm:"index;not null"`
}

// Usable reports whether the record may still be exchanged at now.
func (r *RefreshTokenRecord) Usable(now time.Time) bool {
	return r.IsActive && now.Before(r.ExpiresAt)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
