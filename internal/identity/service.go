package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"teamchat/internal/apperr"
	"teamchat/internal/logging"
)

// Store is what the service needs from the user repository.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RemovalHook runs after a user row is deleted. Hooks are best-effort:
// a failing hook is logged, not rolled back.
type RemovalHook func(ctx context.Context, userID uuid.UUID) error

type Service struct {
	store     Store
	jwtSecret string
	tokenTTL  time.Duration
	onRemove  []RemovalHook
}

type jwtClaims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string, tokenTTL time.Duration) *Service {
	return &Service{store: store, jwtSecret: secret, tokenTTL: tokenTTL}
}

// OnRemove registers a hook invoked when a user account is removed.
func (s *Service) OnRemove(hook RemovalHook) {
	s.onRemove = append(s.onRemove, hook)
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:          uuid.New(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        RolePlayer,
		Password:    string(hashed),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.store.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperr.Authorization("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Authorization("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    "teamchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})
	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}, nil
}

// ValidateToken resolves a bearer token to a Principal.
func (s *Service) ValidateToken(tokenString string) (Principal, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return Principal{}, apperr.Authorization("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, apperr.Authorization("invalid token subject")
	}
	return Principal{
		UserID:      userID,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}

// Remove deletes the user row, then runs the registered removal hooks
// (message redaction, push subscription cleanup). Idempotent: removing an
// already absent user only runs the hooks again, which are themselves
// idempotent.
func (s *Service) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	for _, hook := range s.onRemove {
		if err := hook(ctx, userID); err != nil {
			logging.Error().Err(err).Str("user_id", userID.String()).Msg("account removal hook failed")
		}
	}
	return nil
}
