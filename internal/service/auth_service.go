package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/middleware"
	"github.com/rohan-chari/tempo-backend/internal/port"
	"github.com/rohan-chari/tempo-backend/pkg/config"
)

// AuthService handles the sign-in flow.
type AuthService struct {
	verifier port.IdentityVerifier
	users    *UserService
	audit    port.AuditWriter
	jwtCfg   middleware.JWTConfig
}

// NewAuthService creates a new authentication service. audit may be nil.
func NewAuthService(verifier port.IdentityVerifier, users *UserService, audit port.AuditWriter, cfg *config.Config) *AuthService {
	return &AuthService{
		verifier: verifier,
		users:    users,
		audit:    audit,
		jwtCfg: middleware.JWTConfig{
			Secret:    cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			ExpiresIn: cfg.JWTTTL(),
		},
	}
}

// SignIn verifies an identity-provider token, finds or creates the user and
// returns a session JWT.
func (s *AuthService) SignIn(ctx context.Context, idToken, ip, userAgent string) (string, *domain.User, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return "", nil, port.ValidationErrors{{Index: -1, Field: "idToken", Reason: "required"}}
	}

	profile, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return "", nil, fmt.Errorf("verify token: %w", err)
	}

	user, err := s.users.FindOrCreate(ctx, *profile)
	if err != nil {
		return "", nil, fmt.Errorf("find or create user: %w", err)
	}

	jwt, err := middleware.GenerateJWT(user, s.jwtCfg)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}

	if s.audit != nil {
		details, _ := json.Marshal(map[string]any{"email": user.Email, "new": user.CreatedAt.Equal(user.UpdatedAt)})
		if err := s.audit.WriteAudit(user.Subject, domain.AuditActionLogin, "user", user.Subject, string(details), ip, userAgent); err != nil {
			slog.Error("failed to write login audit log", "error", err)
		}
	}

	slog.Info("user authenticated", "user_id", user.ID, "subject", user.Subject)
	return jwt, user, nil
}

// JWTConfig exposes the session token settings for middleware wiring.
func (s *AuthService) JWTConfig() middleware.JWTConfig {
	return s.jwtCfg
}
