package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Definition describes an admin permission.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	if len(perms) == 0 {
		return nil
	}
	allowed := definitionMap
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := allowed[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ParsePermissions parses and normalizes permissions from JSON.
func ParsePermissions(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return []string{}
	}
	return NormalizePermissions(perms)
}

// MarshalPermissions serializes normalized permissions to JSON.
func MarshalPermissions(perms []string) ([]byte, error) {
	normalized := NormalizePermissions(perms)
	return json.Marshal(normalized)
}

// HasPermission checks whether the key exists in the permission list.
func HasPermission(perms []string, key string) bool {
	if key == "" {
		return false
	}
	for _, perm := range perms {
		if perm == key {
			return true
		}
	}
	return false
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap returns a copy of the permission definition map.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitionMap))
	for key, value := range definitionMap {
		out[key] = value
	}
	return out
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions is the ordered list of permission definitions.
var definitions = []Definition{
	newDefinition("POST", "/v0/admin/members", "Register Member", "Members"),
	newDefinition("GET", "/v0/admin/members", "List Members", "Members"),
	newDefinition("GET", "/v0/admin/members/next-code", "Preview Member Code", "Members"),
	newDefinition("GET", "/v0/admin/members/:id", "Get Member", "Members"),
	newDefinition("PUT", "/v0/admin/members/:id", "Update Member", "Members"),

	newDefinition("GET", "/v0/admin/memberships", "List Memberships", "Memberships"),
	newDefinition("GET", "/v0/admin/memberships/:id", "Get Membership", "Memberships"),
	newDefinition("GET", "/v0/admin/memberships/:id/balance", "Get Membership Balance", "Memberships"),
	newDefinition("GET", "/v0/admin/memberships/:id/periods", "List Membership Periods", "Memberships"),
	newDefinition("POST", "/v0/admin/memberships/:id/payments", "Collect Payment", "Memberships"),
	newDefinition("POST", "/v0/admin/memberships/sweep", "Expire Overdue Memberships", "Memberships"),

	newDefinition("POST", "/v0/admin/payments", "Record Ledger Entry", "Payments"),
	newDefinition("GET", "/v0/admin/payments", "List Payments", "Payments"),
	newDefinition("GET", "/v0/admin/payments/:id", "Get Payment", "Payments"),

	newDefinition("POST", "/v0/admin/attendance", "Check In Member", "Attendance"),
	newDefinition("GET", "/v0/admin/attendance", "List Attendance", "Attendance"),
	newDefinition("GET", "/v0/admin/attendance/:id", "Get Attendance", "Attendance"),
	newDefinition("PUT", "/v0/admin/attendance/:id", "Update Attendance", "Attendance"),
	newDefinition("POST", "/v0/admin/attendance/:id/checkout", "Check Out Member", "Attendance"),
	newDefinition("DELETE", "/v0/admin/attendance/:id", "Delete Attendance", "Attendance"),

	newDefinition("POST", "/v0/admin/plans", "Create Plan", "Plans"),
	newDefinition("GET", "/v0/admin/plans", "List Plans", "Plans"),
	newDefinition("GET", "/v0/admin/plans/:id", "Get Plan", "Plans"),
	newDefinition("PUT", "/v0/admin/plans/:id", "Update Plan", "Plans"),
	newDefinition("DELETE", "/v0/admin/plans/:id", "Delete Plan", "Plans"),
	newDefinition("POST", "/v0/admin/plans/:id/enable", "Enable Plan", "Plans"),
	newDefinition("POST", "/v0/admin/plans/:id/disable", "Disable Plan", "Plans"),

	newDefinition("POST", "/v0/admin/settings", "Create Setting", "Settings"),
	newDefinition("GET", "/v0/admin/settings", "List Settings", "Settings"),
	newDefinition("GET", "/v0/admin/settings/:key", "Get Setting", "Settings"),
	newDefinition("PUT", "/v0/admin/settings/:key", "Update Setting", "Settings"),
	newDefinition("DELETE", "/v0/admin/settings/:key", "Delete Setting", "Settings"),

	newDefinition("POST", "/v0/admin/admins", "Create Admin", "Admins"),
	newDefinition("GET", "/v0/admin/admins", "List Admins", "Admins"),
	newDefinition("GET", "/v0/admin/admins/:id", "Get Admin", "Admins"),
	newDefinition("PUT", "/v0/admin/admins/:id", "Update Admin", "Admins"),
	newDefinition("POST", "/v0/admin/admins/:id/disable", "Disable Admin", "Admins"),
	newDefinition("POST", "/v0/admin/admins/:id/enable", "Enable Admin", "Admins"),
	newDefinition("PUT", "/v0/admin/admins/:id/password", "Change Admin Password", "Admins"),
	newDefinition("GET", "/v0/admin/permissions", "List Permissions", "Admins"),
}

// definitionMap provides fast lookup for permission definitions.
var definitionMap = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}()
