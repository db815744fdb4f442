package model

import "github.com/google/uuid"

// Role is a closed set of portal roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Permission names a capability checked before privileged operations.
type Permission string

const (
	PermSubmitRequest   Permission = "submit_request"
	PermViewOwnRequests Permission = "view_own_requests"
	PermViewAllRequests Permission = "view_all_requests"
	PermReviewRequests  Permission = "review_requests"
	PermUploadFiles     Permission = "upload_files"
)

var rolePermissions = map[Role][]Permission{
	RoleStudent: {PermSubmitRequest, PermViewOwnRequests, PermUploadFiles},
	RoleFaculty: {PermSubmitRequest, PermViewOwnRequests, PermUploadFiles},
	RoleAdmin: {
		PermSubmitRequest,
		PermViewOwnRequests,
		PermUploadFiles,
		PermViewAllRequests,
		PermReviewRequests,
	},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// SelfAssignable reports whether r may be chosen at self-registration.
func (r Role) SelfAssignable() bool {
	return r == RoleStudent || r == RoleFaculty
}

// Can reports whether r holds permission p.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Can reports whether the actor's role holds permission p.
func (a Actor) Can(p Permission) bool {
	return a.Role.Can(p)
}
