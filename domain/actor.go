package domain

type Role string

const (
	RoleAdmin         Role = "admin"
	RolePharmacist    Role = "pharmacist"
	RoleLabTechnician Role = "lab_technician"
	RoleViewer        Role = "viewer"
)

// Actor is the authenticated user behind a request. Its ID is written to
// every movement the request creates.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanMoveStock reports whether the actor may receive, dispense, adjust,
// return or expire stock.
func (a Actor) CanMoveStock() bool {
	switch a.Role {
	case RoleAdmin, RolePharmacist, RoleLabTechnician:
		return true
	}
	return false
}

// CanEditCatalog reports whether the actor may create or change items.
func (a Actor) CanEditCatalog() bool {
	return a.Role == RoleAdmin
}
