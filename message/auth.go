package message

// Authorized implements the authorization predicate reused everywhere a
// service guards access (spec §4.1): grant if the owner role is present;
// grant if the user role is present and the credential's userid matches
// expectedUserID and is not UserUnknown; deny otherwise. This function
// never logs (spec §9 design note) — callers render/log the denial.
func Authorized(cred Cred, expectedUserID uint32) bool {
	if cred.RoleMask&RoleOwner != 0 {
		return true
	}
	if cred.RoleMask&RoleUser != 0 && cred.UserID == expectedUserID && cred.UserID != UserUnknown {
		return true
	}
	return false
}
