package redis

const (
	// KeyPrefixComment is the prefix for comment keys
	KeyPrefixComment = "copresence:comment:"
	// KeyPrefixThread is the prefix for thread keys
	KeyPrefixThread = "copresence:thread:"
	// KeyPrefixSession is the prefix for session keys
	KeyPrefixSession = "copresence:session:"
	// KeyPrefixRoomComments is the prefix for per-room comment id sets
	KeyPrefixRoomComments = "copresence:room:comments:"
	// KeyPrefixRoomThreads is the prefix for per-room thread id sets
	KeyPrefixRoomThreads = "copresence:room:threads:"
	// KeyAllSessions is the key for the set of all session members
	KeyAllSessions = "copresence:sessions:all"
)

// CommentKey returns the Redis key for a comment by ID
func CommentKey(id string) string {
	return KeyPrefixComment + id
}

// ThreadKey returns the Redis key for a thread by ID
func ThreadKey(id string) string {
	return KeyPrefixThread + id
}

// RoomCommentsKey returns the key for the set of comment IDs in a room
func RoomCommentsKey(roomID string) string {
	return KeyPrefixRoomComments + roomID
}

// RoomThreadsKey returns the key for the set of thread IDs in a room
func RoomThreadsKey(roomID string) string {
	return KeyPrefixRoomThreads + roomID
}

// SessionKey returns the Redis key for a session by (room, user)
func SessionKey(roomID, userID string) string {
	return KeyPrefixSession + roomID + ":" + userID
}

// SessionMember encodes a (room, user) pair for the all-sessions set
func SessionMember(roomID, userID string) string {
	return roomID + "|" + userID
}
