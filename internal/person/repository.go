package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrPersonNotFound       = errors.New("person not found")
	ErrPersonNotCreated     = errors.New("person not created")
	ErrPersonNotUpdated     = errors.New("person not updated")
	ErrPersonNotDeleted     = errors.New("person not deleted")
	ErrUnresponsiveDatabase = errors.New("error occured during writing to persons table")
)

const uniqueViolation = "23505"

type PersonRepository interface {
	Create(ctx context.Context, person *Person) error
	ReadByEmail(ctx context.Context, email string) (*Person, error)
	ReadByID(ctx context.Context, id uint) (*Person, error)
	UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*Person, error)
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	SetActive(ctx context.Context, id uint, active bool) error
	Delete(ctx context.Context, id uint) error
}

type personRepository struct {
	db *gorm.DB
}

func NewPersonRepository(db *gorm.DB) PersonRepository {
	return &personRepository{db: db}
}

func (p *personRepository) ReadByID(ctx context.Context, id uint) (*Person, error) {
	var person Person
	err := p.db.WithContext(ctx).
		First(&person, id).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return &person, nil
}

// Create relies on the unique email index, so a lost check-then-insert race still
// ends in ErrEmailAlreadyExists.
func (p *personRepository) Create(ctx context.Context, person *Person) error {
	err := p.db.WithContext(ctx).Create(person).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("%w: %v", ErrPersonNotCreated, err)
	}
	return nil
}

func (p *personRepository) ReadByEmail(ctx context.Context, email string) (*Person, error) {
	var person Person
	err := p.db.WithContext(ctx).
		Where("email = ?", email).
		First(&person).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
	}
	return &person, nil
}

func (p *personRepository) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*Person, error) {
	var updated Person
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Person{}).
			Where("id = ?", id).
			Updates(update.columns())
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrPersonNotUpdated, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPersonNotFound
		}
		if err := tx.First(&updated, id).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrUnresponsiveDatabase, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (p *personRepository) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	return p.updateColumn(ctx, id, "password", passwordHash)
}

func (p *personRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return p.updateColumn(ctx, id, "is_active", active)
}

func (p *personRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) error {
	res := p.db.WithContext(ctx).
		Model(&Person{}).
		Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersonNotUpdated, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPersonNotFound
	}
	return nil
}

func (p *personRepository) Delete(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).Delete(&Person{}, id)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrPersonNotDeleted, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPersonNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
