package middleware

import (
	"net/http"
	"slices"

	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/pkg/response"
)

// RequireRole lets the request through only when the role placed in the
// context by Authenticate is one of roleIDs.
func RequireRole(roleIDs ...int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleID, ok := GetRoleIDFromContext(r.Context())
			switch {
			case !ok:
				response.Unauthorized(w, "Role information not found")
			case !slices.Contains(roleIDs, roleID):
				response.Forbidden(w, "You don't have permission to access this resource")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

var (
	RequireAdmin         = RequireRole(entity.RoleIDAdmin)
	RequirePatient       = RequireRole(entity.RoleIDPatient)
	RequireAdminOrDoctor = RequireRole(entity.RoleIDAdmin, entity.RoleIDDoctor)
)
