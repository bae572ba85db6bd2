package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseline/internal/domain"
	"caseline/internal/engine/auth"
	"caseline/internal/engine/workflow"
	"caseline/internal/repo"
)

const apiKeyPrefix = "cl_"

// IssueAPIKey creates a key for personID carrying roles. The plaintext key
// is returned once and never stored.
func (e Engine) IssueAPIKey(ctx context.Context, personID, name string, roles []domain.Role, caller workflow.Caller) (domain.APIKey, string, error) {
	if !auth.HasRole(caller.Roles, domain.RoleAdmin) {
		return domain.APIKey{}, "", auth.ForbiddenError{Action: "ISSUE_API_KEY"}
	}
	if strings.TrimSpace(personID) == "" {
		return domain.APIKey{}, "", workflow.ValidationError{Field: "person_id", Reason: "required"}
	}
	if len(roles) == 0 {
		return domain.APIKey{}, "", workflow.ValidationError{Field: "roles", Reason: "required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	key := domain.APIKey{
		ID:        e.newID(),
		PersonID:  personID,
		Name:      optionalString(name),
		KeyHash:   repo.HashAPIKey(secret),
		Roles:     strings.Join(names, ","),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
		CreatedBy: caller.PersonID,
	}
	if err := e.Repo.InsertAPIKey(ctx, e.DB, key); err != nil {
		return domain.APIKey{}, "", err
	}
	e.log().Info("api key issued", zap.String("key_id", key.ID), zap.String("person_id", personID), zap.String("roles", key.Roles))
	return key, secret, nil
}

// AuthenticateAPIKey resolves a plaintext key to its caller.
func (e Engine) AuthenticateAPIKey(ctx context.Context, secret string) (workflow.Caller, error) {
	if strings.TrimSpace(secret) == "" {
		return workflow.Caller{}, errors.New("api key required")
	}
	key, err := e.Repo.GetActiveAPIKeyByHash(ctx, e.DB, repo.HashAPIKey(secret))
	if err != nil {
		return workflow.Caller{}, err
	}
	roles, err := auth.ParseRoles(strings.Split(key.Roles, ","))
	if err != nil {
		return workflow.Caller{}, fmt.Errorf("api key %s: %w", key.ID, err)
	}
	return workflow.Caller{PersonID: key.PersonID, Roles: roles}, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string, caller workflow.Caller) error {
	if !auth.HasRole(caller.Roles, domain.RoleAdmin) {
		return auth.ForbiddenError{Action: "ISSUE_API_KEY"}
	}
	if err := e.Repo.RevokeAPIKey(ctx, e.DB, id, e.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	e.log().Info("api key revoked", zap.String("key_id", id))
	return nil
}

func (e Engine) ListAPIKeys(ctx context.Context, personID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, e.DB, personID)
}
