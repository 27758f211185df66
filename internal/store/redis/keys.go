package redis

const (
	// KeyPrefixDoc is the prefix for document keys
	KeyPrefixDoc = "unilend:doc:"
	// KeyPrefixDocSet is the prefix for the per-collection id sets
	KeyPrefixDocSet = "unilend:docs:"
	// KeyPrefixChanges is the prefix for change notification channels
	KeyPrefixChanges = "unilend:changes:"
	// KeyPrefixSession is the prefix for session tokens
	KeyPrefixSession = "unilend:session:"
	// KeyPrefixUserSessions is the prefix for the set of a user's session tokens
	KeyPrefixUserSessions = "unilend:user-sessions:"
	// KeyPrefixReset is the prefix for password reset tokens
	KeyPrefixReset = "unilend:reset:"
	// KeyCatalog is the key of the cached listing catalog
	KeyCatalog = "unilend:catalog"
)

// DocKey returns the key holding one document's JSON fields.
func DocKey(collection, id string) string {
	return KeyPrefixDoc + collection + ":" + id
}

// CollectionKey returns the key of the set of ids in collection.
func CollectionKey(collection string) string {
	return KeyPrefixDocSet + collection
}

// ChangesChannel returns the pub/sub channel notified on every write to collection.
func ChangesChannel(collection string) string {
	return KeyPrefixChanges + collection
}

func SessionKey(token string) string {
	return KeyPrefixSession + token
}

func UserSessionsKey(userID string) string {
	return KeyPrefixUserSessions + userID
}

func ResetKey(token string) string {
	return KeyPrefixReset + token
}
