package domain

import (
	"strconv"
	"strings"
)

// Database name prefixes. A pool entry's identity is its name.
const (
	PoolPrefix    = "pool_"
	TenantPrefix  = "tenant_"
	StagingPrefix = "poolstage_"
)

// PoolDatabaseName returns the name of pool slot n.
func PoolDatabaseName(slot int) string {
	return PoolPrefix + strconv.Itoa(slot)
}

// StagingDatabaseName returns the name slot n is built under before it
// becomes visible to the pool.
func StagingDatabaseName(slot int) string {
	return StagingPrefix + strconv.Itoa(slot)
}

// TenantDatabaseName returns the database name owned by tenant id.
func TenantDatabaseName(id int64) string {
	return TenantPrefix + strconv.FormatInt(id, 10)
}

// TenantDatabaseID extracts the owning tenant id from a tenant database name.
func TenantDatabaseID(name string) (int64, bool) {
	suffix, ok := strings.CutPrefix(name, TenantPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsPoolDatabase reports whether name is an unassigned pool entry.
func IsPoolDatabase(name string) bool {
	_, ok := PoolSlot(name)
	return ok
}

// PoolSlot extracts the slot number from a pool entry name.
func PoolSlot(name string) (int, bool) {
	return slotWithPrefix(name, PoolPrefix)
}

// StagingSlot extracts the slot number a staging database reserves.
func StagingSlot(name string) (int, bool) {
	return slotWithPrefix(name, StagingPrefix)
}

func slotWithPrefix(name, prefix string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
