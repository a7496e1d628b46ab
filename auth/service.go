package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidRefreshToken signals a refresh token that fails verification or is no longer stored.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	// ErrTokenExpired signals an access token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidToken signals an access token that fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig carries the signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service handles authentication business logic.
type Service struct {
	repo          Repository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
	log           *logrus.Entry
}

// LoginResult bundles the tokens and domain user returned after a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         User
}

type accessClaims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// NewService creates a new authentication service.
func NewService(repo Repository, cfg TokenConfig) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret
	}
	return &Service{
		repo:          repo,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
		log:           logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(log *logrus.Entry) *Service {
	if log != nil {
		s.log = log
	}
	return s
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	clean, err := validateRegistration(req)
	if err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(clean.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username:     clean.Username,
		Email:        clean.Email,
		Mobile:       clean.Mobile,
		PasswordHash: string(passwordHash),
		Role:         clean.Role,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return &user, nil
}

// Login authenticates a user, issues both tokens and stores the refresh token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	access, err := s.generateAccessToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	refresh, err := s.generateRefreshToken(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate refresh token: %w", err)
	}

	if err := s.repo.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return LoginResult{}, err
	}
	user.RefreshToken = refresh

	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// Refresh exchanges a stored refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrInvalidRefreshToken
	}

	claims := &refreshClaims{}
	_, err := jwt.ParseWithClaims(refreshToken, claims, s.keyFunc(s.refreshSecret), s.parserOptions()...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return "", ErrInvalidRefreshToken
	}

	access, err := s.generateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return access, nil
}

// Logout clears the stored refresh token. A missing user is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}

// GetUserByID returns the stored account; ErrUserNotFound when it is gone.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates an access token and returns its principal.
func (s *Service) VerifyToken(tokenString string) (Principal, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc(s.accessSecret), s.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if !isValidRole(claims.Role) {
		return Principal{}, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}

	return Principal{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}

func (s *Service) keyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}
}

func (s *Service) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
}

func (s *Service) generateAccessToken(user User) (string, error) {
	now := s.now()
	claims := accessClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
}

// generateRefreshToken carries a random jti so two logins in the same second
// still produce different tokens.
func (s *Service) generateRefreshToken(userID string) (string, error) {
	now := s.now()
	claims := refreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
}
