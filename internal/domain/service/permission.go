// Package service contains the domain services and collaborator ports of the
// sessiond core.
package service

import (
	"fmt"

	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
)

// PermissionService implements the permission model: flat set membership over
// a closed capability vocabulary, default deny.
type PermissionService interface {
	// IsAuthorized reports whether the requested action is covered by the
	// credential's grant. Unknown tags always return false.
	IsAuthorized(credential *models.SessionCredential, action constants.Permission) bool

	// ValidateGrant checks an issuance-time permission set: non-empty and a
	// subset of the closed vocabulary, with no duplicates.
	ValidateGrant(permissions []constants.Permission) error
}

type permissionService struct{}

// NewPermissionService returns the closed-vocabulary permission model.
func NewPermissionService() PermissionService {
	return permissionService{}
}

func (permissionService) IsAuthorized(credential *models.SessionCredential, action constants.Permission) bool {
	if credential == nil {
		return false
	}
	return credential.HasPermission(action)
}

func (permissionService) ValidateGrant(permissions []constants.Permission) error {
	if len(permissions) == 0 {
		return errors.ErrInvalidPermissionSet("permission set must not be empty")
	}
	seen := make(map[constants.Permission]struct{}, len(permissions))
	for _, tag := range permissions {
		if !constants.IsKnownPermission(tag) {
			return errors.ErrInvalidPermissionSet(
				fmt.Sprintf("unknown permission tag %q", tag)).
				WithMetadata("tag", string(tag))
		}
		if _, dup := seen[tag]; dup {
			return errors.ErrInvalidPermissionSet(
				fmt.Sprintf("duplicate permission tag %q", tag))
		}
		seen[tag] = struct{}{}
	}
	return nil
}
