package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/rohan-chari/tempo-backend/internal/domain"
	"github.com/rohan-chari/tempo-backend/internal/port"
)

// tokenValidator is the part of *idtoken.Validator the verifier needs.
type tokenValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier implements port.IdentityVerifier for Google Sign-In ID tokens.
type GoogleVerifier struct {
	clientID  string
	validator tokenValidator
}

// NewGoogleVerifier creates a verifier that accepts ID tokens issued for clientID.
// opts configure the client used to fetch Google's signing keys.
func NewGoogleVerifier(ctx context.Context, clientID string, opts ...idtoken.ClientOption) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create validator: %w", err)
	}
	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

// Verify checks the token signature, expiry and audience and returns the
// profile Google asserts for it.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*domain.ExternalProfile, error) {
	if g.clientID == "" {
		return nil, &port.IdentityError{Kind: port.IdentityAuthFailed, Err: errors.New("google client id not configured")}
	}

	payload, err := g.validator.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, classifyIdentityErr(ctx, err)
	}
	if payload.Subject == "" {
		return nil, &port.IdentityError{Kind: port.IdentityAuthFailed, Err: errors.New("token has no subject")}
	}

	return &domain.ExternalProfile{
		Subject:       payload.Subject,
		Email:         claimString(payload.Claims, "email"),
		DisplayName:   claimString(payload.Claims, "name"),
		PhotoURL:      claimString(payload.Claims, "picture"),
		EmailVerified: claimBool(payload.Claims, "email_verified"),
	}, nil
}

// certStatusPrefix starts the error idtoken returns when Google's key
// endpoint answers with a non-200 status.
const certStatusPrefix = "idtoken: unable to retrieve cert, got status code "

// classifyIdentityErr separates trouble fetching Google's keys from tokens
// that were simply rejected. Token decode failures are formatted with %v by
// idtoken, so only an undecodable key response unwraps to a json or EOF error.
func classifyIdentityErr(ctx context.Context, err error) error {
	kind := port.IdentityAuthFailed

	var (
		urlErr    *url.Error
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = port.IdentityTimeout
	case strings.HasPrefix(msg, certStatusPrefix):
		kind = port.IdentityUpstreamError
		if strings.TrimPrefix(msg, certStatusPrefix) == strconv.Itoa(http.StatusTooManyRequests) {
			kind = port.IdentityRateLimited
		}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF),
		msg == "idtoken: cert response is nil":
		kind = port.IdentityMalformedUpstream
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		kind = port.IdentityUpstreamError
	}
	return &port.IdentityError{Kind: kind, Err: err}
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimBool accepts both JSON booleans and the "true"/"false" strings some
// token issuers emit.
func claimBool(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
