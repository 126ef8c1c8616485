package authz

// Permission sections and keys referenced across the codebase.
const (
	SectionCalendar   = "calendar"
	SectionTransports = "transports"
	SectionUsers      = "users"
	SectionReports    = "reports"

	PermView = "view"
	PermEdit = "edit"
)

// Role is the coarse permission grouping assigned to every principal.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleWarehouse Role = "warehouse"
	RoleSales     Role = "sales"
	RoleUser      Role = "user"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleWarehouse, RoleSales, RoleUser:
		return true
	default:
		return false
	}
}

// Document is a nested mapping from section name to permission name to
// granted flag.
type Document map[string]map[string]bool

// Allows reports whether the leaf permission is granted.
func (d Document) Allows(section, key string) bool {
	perms, ok := d[section]
	if !ok {
		return false
	}
	return perms[key]
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for section, perms := range d {
		copied := make(map[string]bool, len(perms))
		for key, granted := range perms {
			copied[key] = granted
		}
		out[section] = copied
	}
	return out
}

// Merge lays override on top of defaults, leaf key by leaf key. A section
// present in the override never replaces the whole default section; only
// the keys it names change. Neither input is mutated.
func Merge(defaults, override Document) Document {
	merged := defaults.Clone()
	for section, perms := range override {
		target, ok := merged[section]
		if !ok {
			target = make(map[string]bool, len(perms))
			merged[section] = target
		}
		for key, granted := range perms {
			target[key] = granted
		}
	}
	return merged
}

// roleDefaults is the baseline document per role. Unknown roles fall back
// to RoleUser's read-only view.
var roleDefaults = map[Role]Document{
	RoleAdmin: {
		SectionCalendar:   {PermView: true, PermEdit: true},
		SectionTransports: {PermView: true, PermEdit: true},
		SectionUsers:      {PermView: true, PermEdit: true},
		SectionReports:    {PermView: true},
	},
	RoleWarehouse: {
		SectionCalendar:   {PermView: true, PermEdit: true},
		SectionTransports: {PermView: true, PermEdit: true},
		SectionUsers:      {PermView: false, PermEdit: false},
		SectionReports:    {PermView: true},
	},
	RoleSales: {
		SectionCalendar:   {PermView: true, PermEdit: false},
		SectionTransports: {PermView: true, PermEdit: false},
		SectionUsers:      {PermView: false, PermEdit: false},
		SectionReports:    {PermView: true},
	},
	RoleUser: {
		SectionCalendar:   {PermView: true, PermEdit: false},
		SectionTransports: {PermView: false, PermEdit: false},
		SectionUsers:      {PermView: false, PermEdit: false},
		SectionReports:    {PermView: false},
	},
}

// Defaults returns the role-derived baseline document.
func Defaults(role Role) Document {
	doc, ok := roleDefaults[role]
	if !ok {
		doc = roleDefaults[RoleUser]
	}
	return doc.Clone()
}

// Principal is the stored identity row as the authorization layer sees it.
type Principal struct {
	ID              string
	Email           string
	Role            Role
	IsAdmin         bool
	PermissionsBlob []byte
}

// Admin reports whether the principal holds administrator privileges,
// either through the explicit flag or the admin role.
func (p *Principal) Admin() bool {
	return p.IsAdmin || p.Role == RoleAdmin
}

// Effective is the computed authorization snapshot for a principal. It is
// what gets cached and what the capability gates consult.
type Effective struct {
	PrincipalID string   `json:"principal_id"`
	Role        Role     `json:"role"`
	IsAdmin     bool     `json:"is_admin"`
	Permissions Document `json:"permissions"`
}

// Allows reports whether the snapshot grants the leaf permission.
// Administrators pass every gate.
func (e *Effective) Allows(section, key string) bool {
	if e.IsAdmin {
		return true
	}
	return e.Permissions.Allows(section, key)
}
