package service

import "github.com/noah-isme/tutorhub-api/internal/models"

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

// ActorFromClaims converts verified token claims into an Actor.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.ActorID(), Role: claims.Role}
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
