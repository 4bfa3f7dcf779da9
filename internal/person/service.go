package person

import (
	"context"

	"go.uber.org/zap"
)

// PersonService is the administrative view over person rows. Credential changes go
// through the authentication service instead.
type PersonService interface {
	ReadPersonByEmail(ctx context.Context, email string) (*Profile, error)
	ReadPersonByID(ctx context.Context, id uint) (*Profile, error)
	SetActive(ctx context.Context, id uint, active bool) error
	DeletePerson(ctx context.Context, id uint) error
}

type personService struct {
	repo   PersonRepository
	logger *zap.Logger
}

func NewPersonService(repo PersonRepository, logger *zap.Logger) PersonService {
	return &personService{
		repo:   repo,
		logger: logger,
	}
}

/** READ */
func (s *personService) ReadPersonByEmail(ctx context.Context, email string) (*Profile, error) {
	if err := CheckEmail(email); err != nil {
		return nil, err
	}
	person, err := s.repo.ReadByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("failed to get person by email", zap.Error(err))
		return nil, err
	}
	return person.Profile(), nil
}

func (s *personService) ReadPersonByID(ctx context.Context, id uint) (*Profile, error) {
	person, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to get person by ID", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return person.Profile(), nil
}

/** UPDATE */
func (s *personService) SetActive(ctx context.Context, id uint, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		s.logger.Error("failed to change account status", zap.Uint("id", id), zap.Bool("active", active), zap.Error(err))
		return err
	}
	s.logger.Info("account status changed", zap.Uint("id", id), zap.Bool("active", active))
	return nil
}

/** DELETE */
func (s *personService) DeletePerson(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete person", zap.Uint("id", id), zap.Error(err))
		return err
	}
	return nil
}
