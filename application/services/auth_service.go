package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swiftbase/domain/entities"
	"swiftbase/infrastructure/persistence/sqlite"
	"swiftbase/pkg/auth"
	apperrors "swiftbase/pkg/errors"
	"swiftbase/pkg/utils"
)

// AuthService owns registration, login, refresh rotation and logout for both
// principal kinds. Session sets live on the principal row and are mutated in
// the same write scope as the row itself.
type AuthService struct {
	kernel *sqlite.Kernel
	users  *sqlite.UserRepository
	admins *sqlite.AdminRepository
	tokens *auth.TokenService
	audit  *AuditRecorder
	logger *zap.Logger
}

func NewAuthService(
	kernel *sqlite.Kernel,
	users *sqlite.UserRepository,
	admins *sqlite.AdminRepository,
	tokens *auth.TokenService,
	audit *AuditRecorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		kernel: kernel,
		users:  users,
		admins: admins,
		tokens: tokens,
		audit:  audit,
		logger: logger,
	}
}

// RegisterInput is the registration body.
type RegisterInput struct {
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LoginInput is the user login body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginInput is the admin login body.
type AdminLoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is the issued credential pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// UserSession is a user profile plus fresh tokens.
type UserSession struct {
	User *entities.User `json:"user"`
	TokenPair
}

// AdminSession is an admin profile plus fresh tokens.
type AdminSession struct {
	Admin *entities.Admin `json:"admin"`
	TokenPair
}

// invalidCredentials is the single opaque failure for any credential mismatch;
// it never discloses whether the principal exists.
func invalidCredentials() error {
	return apperrors.NewAuthFailure("invalid credentials")
}

// Register creates a user, opens a session and returns profile plus tokens.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*UserSession, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.NewInternal("hashing password").WithCause(err)
	}

	user := &entities.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(input.Email),
		PasswordHash: hash,
		Metadata:     input.Metadata,
	}

	var session *UserSession
	err = s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.users.Insert(ctx, tx, user); err != nil {
			return err
		}
		pair, set, err := s.openSession(user.ID, auth.PrincipalUser, nil)
		if err != nil {
			return err
		}
		if err := s.users.SaveSessions(ctx, tx, user.ID, set); err != nil {
			return err
		}
		stored, err := s.users.GetByID(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		session = &UserSession{User: stored, TokenPair: pair}
		return s.audit.record(ctx, tx, entities.AuditUserRegistered, "user", user.ID,
			&auth.Principal{ID: user.ID, Type: auth.PrincipalUser}, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return session, nil
}

// Login verifies user credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*UserSession, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var session *UserSession
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		user, err := s.users.GetByEmail(ctx, tx, input.Email)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return invalidCredentials()
			}
			return err
		}
		if !auth.VerifyPassword(input.Password, user.PasswordHash) {
			return invalidCredentials()
		}

		now := time.Now()
		if err := s.users.SetLastLogin(ctx, tx, user.ID, now); err != nil {
			return err
		}
		pair, set, err := s.openSession(user.ID, auth.PrincipalUser, user.RefreshTokens)
		if err != nil {
			return err
		}
		if err := s.users.SaveSessions(ctx, tx, user.ID, set); err != nil {
			return err
		}
		user.LastLogin = &now
		session = &UserSession{User: user, TokenPair: pair}
		return s.audit.record(ctx, tx, entities.AuditUserLogin, "user", user.ID,
			&auth.Principal{ID: user.ID, Type: auth.PrincipalUser}, nil)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AdminLogin verifies admin credentials and opens a session.
func (s *AuthService) AdminLogin(ctx context.Context, input AdminLoginInput) (*AdminSession, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var session *AdminSession
	err := s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		admin, err := s.admins.GetByUsername(ctx, tx, input.Username)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return invalidCredentials()
			}
			return err
		}
		if !auth.VerifyPassword(input.Password, admin.PasswordHash) {
			return invalidCredentials()
		}

		now := time.Now()
		if err := s.admins.SetLastLogin(ctx, tx, admin.ID, now); err != nil {
			return err
		}
		pair, set, err := s.openSession(admin.ID, auth.PrincipalAdmin, admin.RefreshTokens)
		if err != nil {
			return err
		}
		if err := s.admins.SaveSessions(ctx, tx, admin.ID, set); err != nil {
			return err
		}
		admin.LastLogin = &now
		session = &AdminSession{Admin: admin, TokenPair: pair}
		return s.audit.record(ctx, tx, entities.AuditAdminLogin, "admin", admin.ID,
			&auth.Principal{ID: admin.ID, Type: auth.PrincipalAdmin}, nil)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Refresh rotates a refresh token: the presented jti is consumed and a fresh
// pair is issued atomically. A replayed jti fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperrors.NewAuthFailure("invalid refresh token")
	}

	var pair TokenPair
	err = s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		set, revokedAt, save, err := s.loadSessions(ctx, tx, claims.Subject, claims.PrincipalType)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.NewAuthFailure("invalid refresh token")
			}
			return err
		}
		if revokedAt != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(*revokedAt) {
			return apperrors.NewAuthFailure("invalid refresh token")
		}
		remaining, ok := set.Consume(claims.ID)
		if !ok {
			return apperrors.NewAuthFailure("invalid refresh token")
		}
		pair, remaining, err = s.openSession(claims.Subject, claims.PrincipalType, remaining)
		if err != nil {
			return err
		}
		return save(remaining)
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// Logout revokes every session of the principal. The tombstone invalidates
// access tokens issued before this moment as well.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal) error {
	return s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now()
		var err error
		if principal.IsAdmin() {
			err = s.admins.Revoke(ctx, tx, principal.ID, now)
		} else {
			err = s.users.Revoke(ctx, tx, principal.ID, now)
		}
		if err != nil {
			return err
		}
		eventType, entityType := entities.AuditUserLogout, "user"
		if principal.IsAdmin() {
			eventType, entityType = entities.AuditAdminLogout, "admin"
		}
		return s.audit.record(ctx, tx, eventType, entityType, principal.ID, principal, nil)
	})
}

// Me returns the user profile behind an authenticated principal.
func (s *AuthService) Me(ctx context.Context, principal *auth.Principal) (*entities.User, error) {
	var user *entities.User
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		user, err = s.users.GetByID(ctx, tx, principal.ID)
		return err
	})
	return user, err
}

// AdminMe returns the admin profile behind an authenticated principal.
func (s *AuthService) AdminMe(ctx context.Context, principal *auth.Principal) (*entities.Admin, error) {
	var admin *entities.Admin
	err := s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		admin, err = s.admins.GetByID(ctx, tx, principal.ID)
		return err
	})
	return admin, err
}

// ValidateAccess verifies a bearer access token and checks the principal's
// revocation tombstone. It is called on every authenticated request.
func (s *AuthService) ValidateAccess(ctx context.Context, token string) (*auth.Principal, error) {
	claims, err := s.tokens.VerifyAccess(token, "")
	if err != nil {
		return nil, apperrors.NewAuthFailure(err.Error())
	}

	var revokedAt *time.Time
	err = s.kernel.Read(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if claims.PrincipalType == auth.PrincipalAdmin {
			admin, err := s.admins.GetByID(ctx, tx, claims.Subject)
			if err != nil {
				return err
			}
			revokedAt = admin.LastRevokedAt
			return nil
		}
		user, err := s.users.GetByID(ctx, tx, claims.Subject)
		if err != nil {
			return err
		}
		revokedAt = user.LastRevokedAt
		return nil
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewAuthFailure("unknown principal")
		}
		return nil, err
	}
	if revokedAt != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(*revokedAt) {
		return nil, apperrors.NewAuthFailure("token has been revoked")
	}
	return &auth.Principal{ID: claims.Subject, Type: claims.PrincipalType}, nil
}

// EnsureAdmin creates the named admin when it does not exist yet. Used by the
// seed path.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperrors.NewValidation("admin password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperrors.NewInternal("hashing password").WithCause(err)
	}
	err = s.kernel.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.admins.GetByUsername(ctx, tx, username); err == nil {
			return nil
		} else if !apperrors.IsNotFound(err) {
			return err
		}
		return s.admins.Insert(ctx, tx, &entities.Admin{
			ID:           uuid.New().String(),
			Username:     username,
			PasswordHash: hash,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("admin ensured", zap.String("username", username))
	return nil
}

// openSession issues a token pair and returns the session set to persist,
// with the new refresh record added and expired ones pruned.
func (s *AuthService) openSession(subject, principalType string, current entities.SessionSet) (TokenPair, entities.SessionSet, error) {
	access, err := s.tokens.IssueAccess(subject, principalType)
	if err != nil {
		return TokenPair{}, nil, apperrors.NewInternal("signing access token").WithCause(err)
	}
	refresh, jti, expiresAt, err := s.tokens.IssueRefresh(subject, principalType)
	if err != nil {
		return TokenPair{}, nil, apperrors.NewInternal("signing refresh token").WithCause(err)
	}
	set := current.Add(entities.RefreshTokenRecord{
		JTI:       jti,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	})
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
	}, set, nil
}

// loadSessions fetches the session set and tombstone for either principal
// kind and returns a closure that persists the updated set.
func (s *AuthService) loadSessions(ctx context.Context, tx *sql.Tx, subject, principalType string) (entities.SessionSet, *time.Time, func(entities.SessionSet) error, error) {
	if principalType == auth.PrincipalAdmin {
		admin, err := s.admins.GetByID(ctx, tx, subject)
		if err != nil {
			return nil, nil, nil, err
		}
		save := func(set entities.SessionSet) error {
			return s.admins.SaveSessions(ctx, tx, subject, set)
		}
		return admin.RefreshTokens, admin.LastRevokedAt, save, nil
	}
	user, err := s.users.GetByID(ctx, tx, subject)
	if err != nil {
		return nil, nil, nil, err
	}
	save := func(set entities.SessionSet) error {
		return s.users.SaveSessions(ctx, tx, subject, set)
	}
	return user.RefreshTokens, user.LastRevokedAt, save, nil
}
