// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Hosted implementations should wrap this error with additional context.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful authentication.
//
// This struct is designed to be extensible via the Metadata field, allowing
// hosted implementations to include additional claims without modifying
// the core type.
//
// Required fields (always populated):
//   - UserID: Unique identifier for the caller
//
// Optional fields (may be empty):
//   - Email: Caller's email address
//   - Roles: List of roles/groups the caller belongs to
//   - Metadata: Arbitrary key-value pairs for hosted extensions
//
// Example:
//
//	info := &AuthInfo{
//	    UserID: "agent-planner-1",
//	    Roles:  []string{"agent"},
//	    Metadata: NewMetadata().
//	        Set("channel_id", "C-42").
//	        Set("mfa_verified", true),
//	}
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated caller.
	// This is the only required field and must never be empty.
	// Callers are human operators or orchestrated agents.
	UserID string

	// Email is the caller's email address.
	// May be empty if not provided by the auth provider, and is always
	// empty for agent identities.
	Email string

	// Roles contains the caller's role memberships for authorization decisions.
	// Common roles: "operator", "agent", "viewer"
	Roles []string

	// Metadata holds additional claims from the identity provider.
	// Hosted implementations can store provider-specific data here
	// without requiring changes to the core struct.
	//
	// Common metadata keys:
	//   - "channel_id": channel the agent is scoped to
	//   - "mfa_verified": whether MFA was used
	//   - "session_id": identity provider session ID
	Metadata Metadata
}

// HasRole checks if the caller has a specific role.
//
// This is a convenience method for authorization checks:
//
//	if !authInfo.HasRole("operator") {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns caller identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopAuthProvider always returns a valid "local-operator" with
// the operator role. This allows the local scheduler to function without
// any authentication infrastructure.
//
// # Hosted Implementation
//
// Hosted versions implement this interface to validate tokens against
// identity providers like Okta, Auth0, or Azure AD, or against the agent
// credential store.
//
// Example hosted implementation:
//
//	type OIDCAuthProvider struct {
//	    verifier *oidc.IDTokenVerifier
//	}
//
//	func (p *OIDCAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
//	    claims, err := p.verifier.Verify(ctx, token)
//	    if err != nil {
//	        return nil, fmt.Errorf("oidc validation failed: %w", ErrUnauthorized)
//	    }
//	    return &AuthInfo{
//	        UserID: claims.Subject,
//	        Roles:  claims.Groups,
//	    }, nil
//	}
type AuthProvider interface {
	// Validate checks if the token is valid and returns the caller's identity.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - token: The authentication token (JWT, session ID, API key, etc.)
	//
	// Returns:
	//   - *AuthInfo: Caller identity information if valid
	//   - error: ErrUnauthorized (or wrapped) if invalid, other errors for failures
	//
	// The token format is implementation-specific:
	//   - JWT: "eyJhbGciOiJSUzI1NiIs..."
	//   - API Key: "ak_live_..."
	//   - Session: "sess_..."
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an authorization check request.
//
// This struct follows the common pattern of (subject, action, resource)
// for access control decisions.
//
// Example:
//
//	req := AuthzRequest{
//	    User:         authInfo,
//	    Action:       "mutate",
//	    ResourceType: "channel",
//	    ResourceID:   "C-42",
//	}
//	err := authzProvider.Authorize(ctx, req)
type AuthzRequest struct {
	// User is the authenticated caller making the request.
	// This comes from AuthProvider.Validate().
	User *AuthInfo

	// Action is the operation being attempted.
	// Common actions: "read", "mutate", "build"
	Action string

	// ResourceType is the category of resource being accessed.
	// Examples: "channel", "task", "dependency", "snapshot"
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	// If empty, the check is for the resource type in general.
	// Examples: "C-42", "T-123"
	ResourceID string
}

// AuthzProvider checks if a caller is authorized to perform an action.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopAuthzProvider always allows all actions. This is appropriate
// for single-operator local deployments where access control isn't needed.
//
// # Hosted Implementation
//
// Hosted versions implement RBAC, ABAC, or policy-based access control.
// A common policy scopes agents to mutating only their own channel.
//
// Example hosted implementation:
//
//	type RBACProvider struct {
//	    policies *PolicyEngine
//	}
//
//	func (p *RBACProvider) Authorize(ctx context.Context, req AuthzRequest) error {
//	    allowed := p.policies.Check(req.User.Roles, req.Action, req.ResourceType)
//	    if !allowed {
//	        return fmt.Errorf("user %s cannot %s %s: %w",
//	            req.User.UserID, req.Action, req.ResourceType, ErrUnauthorized)
//	    }
//	    return nil
//	}
type AuthzProvider interface {
	// Authorize checks if the caller is permitted to perform the action.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - req: The authorization request describing user, action, and resource
	//
	// Returns:
	//   - nil: Action is authorized
	//   - error: ErrUnauthorized (or wrapped) if denied
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider is the default authentication provider for open source.
//
// It always returns a valid local operator, enabling the scheduler to
// function without any authentication infrastructure.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	provider := &NopAuthProvider{}
//	info, err := provider.Validate(ctx, "any-token")
//	// info.UserID == "local-operator"
//	// info.Roles == []string{"operator"}
//	// err == nil
type NopAuthProvider struct{}

// Validate always returns a valid local operator.
//
// The token parameter is ignored - any value (including empty string)
// results in successful authentication. This is intentional for local
// single-operator deployments.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-operator",
		Email:  "",
		Roles:  []string{"operator"},
	}, nil
}

// NopAuthzProvider is the default authorization provider for open source.
//
// It always allows all actions, enabling the scheduler to function without
// any access control infrastructure.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	provider := &NopAuthzProvider{}
//	err := provider.Authorize(ctx, AuthzRequest{
//	    User:         &AuthInfo{UserID: "anyone"},
//	    Action:       "mutate",
//	    ResourceType: "channel",
//	})
//	// err == nil (always allowed)
type NopAuthzProvider struct{}

// Authorize always returns nil, allowing all actions.
//
// The request parameter is ignored - all actions are permitted.
// This is intentional for local single-operator deployments where
// access control isn't needed.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// Compile-time interface compliance checks.
// These ensure NopAuthProvider and NopAuthzProvider implement their interfaces.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
