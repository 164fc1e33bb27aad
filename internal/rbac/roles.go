package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator can start calls, read them, apply decisions, and recall.
	RoleOperator = "operator"
	// RoleAdmin can additionally trigger stale sweeps on demand.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
