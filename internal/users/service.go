package users

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/auth"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/models"
	"github.com/suPer8Hu/canvas-platform/internal/workspace"
)

var (
	errInvalidCredentials = apperr.Unauthorized("invalid credentials")
	errEmailTaken         = apperr.Conflict("user already exists")
	errUserNotFound       = apperr.NotFound("user not found")
)

type Service struct {
	db         *gorm.DB
	workspaces *workspace.Service
	issuer     *auth.Issuer
	log        *logger.Logger
}

func NewService(db *gorm.DB, workspaces *workspace.Service, issuer *auth.Issuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, workspaces: workspaces, issuer: issuer, log: log}
}

// Session is what register and login hand back to the client.
type Session struct {
	User   *models.User
	Tokens auth.TokenPair
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(s)
}

func credentials(email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", apperr.Validation("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return "", apperr.Validation("invalid email")
	}
	return email, nil
}

func (s *Service) emailTaken(ctx context.Context, email string, exceptID uint64) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	email, err := credentials(email, password)
	if err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: email, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		// lost the race against a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errEmailTaken
		}
		return nil, err
	}

	tokens, err := s.issuer.IssuePair(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID)
	return &Session{User: u, Tokens: tokens}, nil
}

// Login reports unknown email and wrong password the same way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	tokens, err := s.issuer.IssuePair(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: &u, Tokens: tokens}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return auth.TokenPair{}, apperr.Validation("refresh token is required")
	}
	return s.issuer.Refresh(ctx, refreshToken)
}

func selfOnly(callerID, targetID uint64) error {
	if callerID != targetID {
		return apperr.Forbidden("you can only access your own account")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, callerID, targetID uint64) (*models.User, error) {
	if err := selfOnly(callerID, targetID); err != nil {
		return nil, err
	}
	var u models.User
	err := s.db.WithContext(ctx).Take(&u, targetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Update replaces both email and password.
func (s *Service) Update(ctx context.Context, callerID, targetID uint64, email, password string) (*models.User, error) {
	if err := selfOnly(callerID, targetID); err != nil {
		return nil, err
	}
	email, err := credentials(email, password)
	if err != nil {
		return nil, err
	}
	taken, err := s.emailTaken(ctx, email, targetID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var out models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&out, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errUserNotFound
			}
			return err
		}
		if err := tx.Model(&out).Updates(map[string]any{"email": email, "password_hash": hash}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errEmailTaken
			}
			return err
		}
		out.Email = email
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the account with every workspace it owns, then revokes
// outstanding refresh sessions. Access tokens stay valid until they expire.
func (s *Service) Delete(ctx context.Context, callerID, targetID uint64) error {
	if err := selfOnly(callerID, targetID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.User{}, targetID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errUserNotFound
		}
		return s.workspaces.PurgeOwner(ctx, tx, targetID)
	})
	if err != nil {
		return err
	}
	if err := s.issuer.RevokeUser(ctx, targetID); err != nil {
		s.log.Warn("revoke refresh sessions failed", "user_id", targetID, "err", err)
	}
	s.log.Info("user deleted", "user_id", targetID)
	return nil
}
