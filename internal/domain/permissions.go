package domain

// Permissions is a bitmask of administrative capabilities.
type Permissions int

const (
	PermManageUsers Permissions = 1 << iota
	PermManagePosts
)

// Has reports whether every bit of p is set.
func (perms Permissions) Has(p Permissions) bool {
	return perms&p == p
}

// Caller is the authenticated identity a request acts as.
type Caller struct {
	ID          string
	Email       string
	Name        string
	Permissions Permissions
}

// CanManageUser reports whether the caller may modify the account id.
func (c Caller) CanManageUser(id string) bool {
	return c.ID == id || c.Permissions.Has(PermManageUsers)
}

// CanManagePost reports whether the caller may modify a post by authorID.
func (c Caller) CanManagePost(authorID string) bool {
	return c.ID == authorID || c.Permissions.Has(PermManagePosts)
}
