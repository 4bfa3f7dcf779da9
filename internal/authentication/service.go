package authentication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/school-auth-service/internal/password"
	"github.com/mehmetcc/school-auth-service/internal/person"
	"github.com/mehmetcc/school-auth-service/internal/utils"
)

// timingPassword is hashed once so logins for unknown emails still pay for a verify.
const timingPassword = "timing-equalizer-password-1!"

// TokenCodec mints and verifies signed tokens.
type TokenCodec interface {
	GeneratePair(identity utils.Identity) (*utils.TokenPair, error)
	Verify(token string, kind utils.TokenKind) (*utils.Claims, error)
}

type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	Role        person.Role
	Phone       *string
	DateOfBirth *time.Time
	Address     *string
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User         *person.Profile
	AccessToken  string
	RefreshToken string
}

type AuthenticationService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	// GetCurrentUser loads the profile for userID. claims are only consulted by the
	// configured ProfileFallback when the row is missing.
	GetCurrentUser(ctx context.Context, userID uint, claims *utils.Claims) (*person.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint) error
	UpdateProfile(ctx context.Context, userID uint, update person.ProfileUpdate) (*person.Profile, error)
	ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error
	ActiveSessions(ctx context.Context, userID uint) (int64, error)
}

type authenticationService struct {
	persons   person.PersonRepository
	records   RecordRepository
	hasher    password.Hasher
	codec     TokenCodec
	fallback  ProfileFallback
	logger    *zap.Logger
	dummyHash string
}

func NewAuthenticationService(
	persons person.PersonRepository,
	records RecordRepository,
	hasher password.Hasher,
	codec TokenCodec,
	fallback ProfileFallback,
	logger *zap.Logger,
) (AuthenticationService, error) {
	if fallback == nil {
		fallback = strictProfileLookup{}
	}
	dummyHash, err := hasher.Hash(timingPassword)
	if err != nil {
		return nil, fmt.Errorf("preparing timing hash: %w", err)
	}
	return &authenticationService{
		persons:   persons,
		records:   records,
		hasher:    hasher,
		codec:     codec,
		fallback:  fallback,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

func (a *authenticationService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	_, err := a.persons.ReadByEmail(ctx, in.Email)
	switch {
	case err == nil:
		a.logger.Warn("registration refused", zap.String("email", emailFingerprint(in.Email)), zap.Error(ErrDuplicateEmail))
		return nil, ErrDuplicateEmail
	case !errors.Is(err, person.ErrPersonNotFound):
		a.logger.Error("register: email lookup failed", zap.Error(err))
		return nil, ErrInternal
	}

	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrEmptyPassword) || errors.Is(err, password.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailure, err)
		}
		a.logger.Error("register: hashing failed", zap.Error(err))
		return nil, ErrInternal
	}

	p := person.NewPerson(strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), in.Email, hash, in.Role)
	p.Phone = nonEmpty(in.Phone)
	p.DateOfBirth = in.DateOfBirth
	p.Address = nonEmpty(in.Address)

	if err := a.persons.Create(ctx, p); err != nil {
		if errors.Is(err, person.ErrEmailAlreadyExists) {
			a.logger.Warn("registration refused", zap.String("email", emailFingerprint(in.Email)), zap.Error(ErrDuplicateEmail))
			return nil, ErrDuplicateEmail
		}
		a.logger.Error("register: create person failed", zap.Error(err))
		return nil, ErrInternal
	}

	pair, err := a.issueSession(ctx, p)
	if err != nil {
		return nil, err
	}

	a.logger.Info("person registered", zap.Uint("personID", p.ID), zap.String("role", string(p.Role)))
	return &AuthResult{User: p.Profile(), AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Login answers ErrInvalidCredentials for an unknown email, a deactivated account and a
// wrong password alike, and verifies a hash in every case.
func (a *authenticationService) Login(ctx context.Context, email, plaintext string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	p, err := a.persons.ReadByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, person.ErrPersonNotFound) {
			a.hasher.Verify(plaintext, a.dummyHash)
			a.logger.Warn("login failed", zap.String("email", emailFingerprint(email)), zap.String("reason", "unknown email"))
			return nil, ErrInvalidCredentials
		}
		a.logger.Error("login: person lookup failed", zap.Error(err))
		return nil, ErrInternal
	}

	matches := a.hasher.Verify(plaintext, p.Password)
	if !p.IsActive {
		a.logger.Warn("login failed", zap.Uint("personID", p.ID), zap.Error(ErrAccountDeactivated))
		return nil, ErrInvalidCredentials
	}
	if !matches {
		a.logger.Warn("login failed", zap.Uint("personID", p.ID), zap.String("reason", "wrong password"))
		return nil, ErrInvalidCredentials
	}

	pair, err := a.issueSession(ctx, p)
	if err != nil {
		return nil, err
	}
	a.logger.Info("person logged in", zap.Uint("personID", p.ID))
	return &AuthResult{User: p.Profile(), AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// issueSession mints a pair and replaces every earlier refresh record of p with the new one.
func (a *authenticationService) issueSession(ctx context.Context, p *person.Person) (*utils.TokenPair, error) {
	pair, err := a.codec.GeneratePair(utils.IdentityOf(p))
	if err != nil {
		a.logger.Error("token generation failed", zap.Uint("personID", p.ID), zap.Error(err))
		return nil, ErrInternal
	}
	if err := a.records.Issue(ctx, p.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		a.logger.Error("storing refresh token failed", zap.Uint("personID", p.ID), zap.Error(err))
		return nil, ErrInternal
	}
	return pair, nil
}

func (a *authenticationService) GetCurrentUser(ctx context.Context, userID uint, claims *utils.Claims) (*person.Profile, error) {
	p, err := a.persons.ReadByID(ctx, userID)
	if err == nil {
		return p.Profile(), nil
	}
	if errors.Is(err, person.ErrPersonNotFound) {
		return a.fallback.MissingProfile(ctx, userID, claims)
	}
	a.logger.Error("current user lookup failed", zap.Uint("personID", userID), zap.Error(err))
	return nil, ErrInternal
}

// Refresh exchanges a refresh token for a new pair. Whatever goes wrong, the caller only
// ever sees ErrInvalidRefreshToken.
func (a *authenticationService) Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := a.codec.Verify(refreshToken, utils.RefreshToken)
	if err != nil {
		a.logger.Debug("refresh token rejected by codec", zap.Error(err))
		return nil, ErrInvalidRefreshToken
	}
	subject, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	rec, err := a.records.FindActiveValid(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFoundByGivenToken) {
			a.logger.Error("refresh record lookup failed", zap.Error(err))
		}
		return nil, ErrInvalidRefreshToken
	}
	if rec.PersonID != subject || rec.Person == nil {
		a.logger.Warn("refresh token subject mismatch", zap.Uint("personID", rec.PersonID), zap.Uint("subject", subject))
		return nil, ErrInvalidRefreshToken
	}

	// Claims come from the current person row, not from the presented token.
	pair, err := a.codec.GeneratePair(utils.IdentityOf(rec.Person))
	if err != nil {
		a.logger.Error("token generation failed", zap.Uint("personID", rec.PersonID), zap.Error(err))
		return nil, ErrInvalidRefreshToken
	}
	if err := a.records.Rotate(ctx, refreshToken, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		if errors.Is(err, ErrRecordNotFoundByGivenToken) {
			a.logger.Warn("refresh token already consumed", zap.Uint("personID", rec.PersonID))
		} else {
			a.logger.Error("refresh token rotation failed", zap.Uint("personID", rec.PersonID), zap.Error(err))
		}
		return nil, ErrInvalidRefreshToken
	}
	return pair, nil
}

// Logout succeeds whether or not refreshToken matched a record.
func (a *authenticationService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := a.records.Deactivate(ctx, refreshToken); err != nil {
		a.logger.Error("logout failed", zap.Error(err))
		return ErrInternal
	}
	return nil
}

func (a *authenticationService) LogoutAll(ctx context.Context, userID uint) error {
	if err := a.records.DeactivateAllForPerson(ctx, userID); err != nil {
		a.logger.Error("logout from all devices failed", zap.Uint("personID", userID), zap.Error(err))
		return ErrInternal
	}
	a.logger.Info("all sessions revoked", zap.Uint("personID", userID))
	return nil
}

func (a *authenticationService) UpdateProfile(ctx context.Context, userID uint, update person.ProfileUpdate) (*person.Profile, error) {
	if update.IsEmpty() {
		return nil, ErrNoFieldsProvided
	}
	for _, name := range []*string{update.FirstName, update.LastName} {
		if name == nil {
			continue
		}
		if err := person.CheckName(*name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailure, err)
		}
		*name = strings.TrimSpace(*name)
	}

	p, err := a.persons.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, person.ErrPersonNotFound) {
			return nil, ErrUserNotFound
		}
		a.logger.Error("profile update failed", zap.Uint("personID", userID), zap.Error(err))
		return nil, ErrInternal
	}
	return p.Profile(), nil
}

// ChangePassword replaces the hash and then revokes every refresh token of the user,
// forcing a new login on all devices.
func (a *authenticationService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	if err := person.CheckPassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailure, err)
	}

	p, err := a.persons.ReadByID(ctx, userID)
	if err != nil {
		if errors.Is(err, person.ErrPersonNotFound) {
			return ErrUserNotFound
		}
		a.logger.Error("change password: lookup failed", zap.Uint("personID", userID), zap.Error(err))
		return ErrInternal
	}
	if !a.hasher.Verify(currentPassword, p.Password) {
		return ErrCurrentPasswordIncorrect
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		a.logger.Error("change password: hashing failed", zap.Error(err))
		return ErrInternal
	}
	if err := a.persons.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, person.ErrPersonNotFound) {
			return ErrUserNotFound
		}
		a.logger.Error("change password: update failed", zap.Uint("personID", userID), zap.Error(err))
		return ErrInternal
	}
	if err := a.records.DeactivateAllForPerson(ctx, userID); err != nil {
		a.logger.Error("change password: revoking sessions failed", zap.Uint("personID", userID), zap.Error(err))
		return ErrInternal
	}

	a.logger.Info("password changed, sessions revoked", zap.Uint("personID", userID))
	return nil
}

func (a *authenticationService) ActiveSessions(ctx context.Context, userID uint) (int64, error) {
	n, err := a.records.CountActiveForPerson(ctx, userID)
	if err != nil {
		a.logger.Error("counting sessions failed", zap.Uint("personID", userID), zap.Error(err))
		return 0, ErrInternal
	}
	return n, nil
}

func validateRegistration(in RegisterInput) error {
	checks := []error{
		person.CheckName(in.FirstName),
		person.CheckName(in.LastName),
		person.CheckEmail(in.Email),
		person.CheckPassword(in.Password),
		person.CheckRole(in.Role),
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidationFailure, err)
		}
	}
	return nil
}

// emailFingerprint identifies an address in logs without recording it.
func emailFingerprint(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:8])
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
