package shared

// PermissionSyncLockKey builds the redis key guarding the single-writer sync run.
func PermissionSyncLockKey() string {
	return "orgsync:permission_sync:lock"
}
