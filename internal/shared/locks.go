package shared

import "fmt"

// RoleEpochKey builds the redis key holding a role's invalidation epoch.
func RoleEpochKey(roleID int64) string {
	return fmt.Sprintf("authz:role:%d:epoch", roleID)
}

// StaffEpochKey builds the redis key holding a staff member's invalidation
// epoch, bumped when their role assignment changes.
func StaffEpochKey(staffID int64) string {
	return fmt.Sprintf("authz:staff:%d:epoch", staffID)
}

// SessionKey builds the redis key holding one actor session payload.
func SessionKey(id string) string {
	return "authz:session:" + id
}
