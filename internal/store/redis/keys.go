package redis

const (
	// KeyPrefixWidget is the prefix for widget keys
	KeyPrefixWidget = "peekdeck:widget:"
	// KeyAllWidgets is the key for the set of all widget IDs
	KeyAllWidgets = "peekdeck:widgets:all"
	// KeyPrefixCredentials is the prefix for credential record keys
	KeyPrefixCredentials = "peekdeck:credentials:"
)

// WidgetKey returns the Redis key for a widget by ID
func WidgetKey(id string) string {
	return KeyPrefixWidget + id
}

// AllWidgetsKey returns the key for the set of all widget IDs
func AllWidgetsKey() string {
	return KeyAllWidgets
}

// CredentialsKey returns the Redis key for a credential record. The
// owner is a widget ID or a credential group ID.
func CredentialsKey(ownerID string) string {
	return KeyPrefixCredentials + ownerID
}
