package accounts

// Role names, ordered by privilege. Stored as plain strings on the user
// record; ParseRole maps free-form input back to a known role.
const (
	RoleGuest = "guest"
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var roleRank = map[string]int{
	RoleGuest: 0,
	RoleUser:  1,
	RoleAdmin: 2,
}

// ParseRole returns the canonical role name, falling back to RoleUser for
// anything it does not recognize.
func ParseRole(role string) string {
	if _, ok := roleRank[role]; ok {
		return role
	}
	return RoleUser
}

// RoleAtLeast reports whether have carries at least the privilege of want.
func RoleAtLeast(have, want string) bool {
	return roleRank[ParseRole(have)] >= roleRank[ParseRole(want)]
}
