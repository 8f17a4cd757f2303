package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/msomdec/murmur/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the payload of an issued session token.
type Claims struct {
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Permissions domain.Permissions `json:"permissions"`
	jwt.RegisteredClaims
}

// AuthService is the credential store: it hashes and verifies passwords
// and issues and validates session tokens.
type AuthService struct {
	users      domain.UserRepository
	jwtSecret  []byte
	bcryptCost int
	tokenTTL   time.Duration
	policy     PasswordPolicy
}

// NewAuthService creates a new AuthService. A zero tokenTTL issues tokens
// without an exp claim.
func NewAuthService(users domain.UserRepository, jwtSecret string, bcryptCost int, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcryptCost,
		tokenTTL:   tokenTTL,
		policy:     DefaultPasswordPolicy,
	}
}

// Register creates an account and sets its password. If the password is
// rejected the freshly created account is removed again. It returns the
// user and a session token.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.User, string, error) {
	in := AccountInput{Email: email, Name: name}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, "", err
	}
	if err := s.checkPassword(password); err != nil {
		return nil, "", err
	}

	user := &domain.User{Email: in.Email, Name: in.Name}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	created, err := s.SetPassword(ctx, user.ID, password)
	if err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			slog.Error("remove user after failed password set", "user", user.ID, "error", delErr)
		}
		return nil, "", err
	}
	user = created

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// SetPassword validates plaintext against the password policy and only then
// stores a fresh salted hash on the user. Nothing is written when the
// password is rejected.
func (s *AuthService) SetPassword(ctx context.Context, userID, plaintext string) (*domain.User, error) {
	if err := s.checkPassword(plaintext); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password is too long", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.SetPasswordHash(ctx, userID, string(hash))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store password hash: %w", err)
	}
	return user, nil
}

func (s *AuthService) checkPassword(plaintext string) error {
	if violations := s.policy.Validate(plaintext); len(violations) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, violations[0].Message)
	}
	return nil
}

// ComparePassword reports whether plaintext matches the stored bcrypt hash.
// An empty hash never matches.
func (s *AuthService) ComparePassword(hash, plaintext string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	in := AccountInput{Email: email}
	in.normalize()

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	if !s.ComparePassword(user.PasswordHash, password) {
		return "", domain.ErrUnauthorized
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// IssueToken signs a token carrying the user's identity, email, name and
// permission level.
func (s *AuthService) IssueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:       user.Email,
		Name:        user.Name,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.tokenTTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses and validates a token string.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Authenticate validates the token and loads the account it names, so
// deleted accounts and stale permission levels are not trusted.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
