package authentication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRecordNotFoundByGivenToken = errors.New("record not found by given token")
	ErrUnresponsiveDatabase       = errors.New("error occurred during writing to records table")
)

// RecordRepository persists refresh token records. Tokens are passed in the clear and
// stored as digests.
type RecordRepository interface {
	// Insert creates an active record. Callers that need the one-active-record invariant use Issue.
	Insert(ctx context.Context, personID uint, token string, expiresAt time.Time) error
	// Issue deactivates every record of personID and inserts token, atomically.
	Issue(ctx context.Context, personID uint, token string, expiresAt time.Time) error
	// FindActiveValid returns the record (with its Person) only if it is active, unexpired
	// and owned by an active account.
	FindActiveValid(ctx context.Context, token string) (*RefreshTokenRecord, error)
	// Rotate consumes oldToken and stores newToken for the same person, atomically. At most
	// one of several concurrent rotations of the same token succeeds.
	Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time) error
	Deactivate(ctx context.Context, token string) error
	DeactivateAllForPerson(ctx context.Context, personID uint) error
	CountActiveForPerson(ctx context.Context, personID uint) (int64, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Insert(ctx context.Context, personID uint, token string, expiresAt time.Time) error {
	return insertRecord(r.db.WithContext(ctx), personID, tokenDigest(token), expiresAt)
}

func (r *recordRepository) Issue(ctx context.Context, personID uint, token string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deactivateAll(tx, personID); err != nil {
			return err
		}
		return insertRecord(tx, personID, tokenDigest(token), expiresAt)
	})
}

func (r *recordRepository) FindActiveValid(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := r.db.WithContext(ctx).
		Preload("Person").
		Joins("JOIN persons ON persons.id = refresh_token_records.person_id").
		Where("refresh_token_records.refresh_token = ?", tokenDigest(token)).
		Where("refresh_token_records.is_active = ?", true).
		Where("refresh_token_records.expires_at > ?", time.Now().UTC()).
		Where("persons.is_active = ?", true).
		Where("persons.deleted_at IS NULL").
		First(&record).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFoundByGivenToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return &record, nil
}

func (r *recordRepository) Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time) error {
	return r.db.
		WithContext(ctx).
		Transaction(func(tx *gorm.DB) error {
			var rec RefreshTokenRecord
			err := tx.
				Where("refresh_token = ?", tokenDigest(oldToken)).
				Where("is_active = ?", true).
				Where("expires_at > ?", time.Now().UTC()).
				First(&rec).
				Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFoundByGivenToken
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
			}

			// Conditional update: a concurrent rotation that got here first leaves zero rows.
			res := tx.Model(&RefreshTokenRecord{}).
				Where("id = ?", rec.ID).
				Where("is_active = ?", true).
				Update("is_active", false)
			if res.Error != nil {
				return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, res.Error)
			}
			if res.RowsAffected != 1 {
				return ErrRecordNotFoundByGivenToken
			}

			if err := deactivateAll(tx, rec.PersonID); err != nil {
				return err
			}
			return insertRecord(tx, rec.PersonID, tokenDigest(newToken), newExpiry)
		})
}

func (r *recordRepository) Deactivate(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("refresh_token = ?", tokenDigest(token)).
		Where("is_active = ?", true).
		Update("is_active", false).
		Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return nil
}

func (r *recordRepository) DeactivateAllForPerson(ctx context.Context, personID uint) error {
	return deactivateAll(r.db.WithContext(ctx), personID)
}

func (r *recordRepository) CountActiveForPerson(ctx context.Context, personID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("person_id = ?", personID).
		Where("is_active = ?", true).
		Where("expires_at > ?", time.Now().UTC()).
		Count(&count).
		Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return count, nil
}

func deactivateAll(tx *gorm.DB, personID uint) error {
	err := tx.Model(&RefreshTokenRecord{}).
		Where("person_id = ?", personID).
		Where("is_active = ?", true).
		Update("is_active", false).
		Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return nil
}

func insertRecord(tx *gorm.DB, personID uint, digest string, expiresAt time.Time) error {
	record := &RefreshTokenRecord{
		PersonID:     personID,
		RefreshToken: digest,
		ExpiresAt:    expiresAt.UTC(),
		IsActive:     true,
	}
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create refresh token record: %w", err)
	}
	return nil
}
