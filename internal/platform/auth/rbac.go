package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// RolesFor derives token roles from a user's type and flags. Staff and
// superusers are always admins.
func RolesFor(userType string, isStaff, isSuperuser bool) []string {
	roles := []string{}
	if userType != "" {
		roles = append(roles, userType)
	}
	if (isStaff || isSuperuser) && userType != RoleAdmin {
		roles = append(roles, RoleAdmin)
	}
	return roles
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether the caller holds role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

func IsAdmin(ctx context.Context) bool {
	return HasRole(ctx, RoleAdmin)
}

// IsStaff reports whether the caller is an admin or a doctor.
func IsStaff(ctx context.Context) bool {
	return IsAdmin(ctx) || HasRole(ctx, RoleDoctor)
}

// ScopeToPatient pins the "patient" list filter of a patient caller to their
// own profile. Staff callers are left unrestricted.
func ScopeToPatient(ctx context.Context, params url.Values) error {
	if IsStaff(ctx) {
		return nil
	}
	id := PatientIDFromContext(ctx)
	if id == "" {
		return echo.NewHTTPError(http.StatusForbidden, "no patient profile is linked to this account")
	}
	params.Set("patient", id)
	return nil
}

// CanSeePatient reports whether the caller may read records of patientID.
func CanSeePatient(ctx context.Context, patientID uuid.UUID) bool {
	if IsStaff(ctx) {
		return true
	}
	own, ok := PatientUUID(ctx)
	return ok && own == patientID
}
