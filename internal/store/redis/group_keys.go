package redis

const (
	// KeyPrefixGroup is the prefix for credential group keys
	KeyPrefixGroup = "peekdeck:credgroup:"
	// KeyAllGroups is the key for the set of all credential group IDs
	KeyAllGroups = "peekdeck:credgroups:all"
)

// GroupKey returns the Redis key for a credential group
func GroupKey(id string) string {
	return KeyPrefixGroup + id
}

// AllGroupsKey returns the Redis key for the set of all credential groups
func AllGroupsKey() string {
	return KeyAllGroups
}
