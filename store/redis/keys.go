package redis

import "fmt"

// keys are the four per-(user_id, type) collection names spec.md §6
// fixes: "<prefix>.s.<uid>.<type>", ".e.", ".l.", ".pl.".
type keys struct {
	sessionMap string // hash: sid -> integrity-wrapped session blob
	expSet     string // sorted set: sid -> refresh_expires_at
	lockMap    string // hash: sid -> lock_version
	pruneLock  string // string marker, SET NX with a 1h TTL
}

func newKeys(prefix, userID, typ string) keys {
	return keys{
		sessionMap: fmt.Sprintf("%s.s.%s.%s", prefix, userID, typ),
		expSet:     fmt.Sprintf("%s.e.%s.%s", prefix, userID, typ),
		lockMap:    fmt.Sprintf("%s.l.%s.%s", prefix, userID, typ),
		pruneLock:  fmt.Sprintf("%s.pl.%s.%s", prefix, userID, typ),
	}
}
