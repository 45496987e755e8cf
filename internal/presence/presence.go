package presence

import "sync"

// Store tracks which users currently hold at least one live connection.
// A user may be connected from several devices or tabs at once; they stay
// online until the last connection goes away.
//
// The in-memory implementation is process-local. For multi-instance
// deployments use the Redis-backed store so all instances see the same
// presence sets.
type Store interface {
	Connect(userId, connId string)
	Disconnect(userId, connId string)
	IsOnline(userId string) bool
	FilterOnline(userIds []string) []string
	OnlineCount() int
}

type userConns struct {
	mu    sync.Mutex
	conns map[string]struct{}
	// gone marks a set that was emptied and unlinked from the registry,
	// so a racing Connect re-creates the entry instead of resurrecting it.
	gone bool
}

// MemoryStore keeps presence sets in a concurrent map. All operations
// are total functions and safe under many concurrent connection
// lifecycles.
type MemoryStore struct {
	users sync.Map // userId -> *userConns
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Connect(userId, connId string) {
	for {
		v, _ := s.users.LoadOrStore(userId, &userConns{conns: make(map[string]struct{})})
		uc := v.(*userConns)

		uc.mu.Lock()
		if uc.gone {
			uc.mu.Unlock()
			continue
		}
		uc.conns[connId] = struct{}{}
		uc.mu.Unlock()
		return
	}
}

func (s *MemoryStore) Disconnect(userId, connId string) {
	v, ok := s.users.Load(userId)
	if !ok {
		return
	}
	uc := v.(*userConns)

	uc.mu.Lock()
	delete(uc.conns, connId)
	if len(uc.conns) == 0 {
		// Last connection gone: drop the whole entry so the registry
		// does not grow with idle users.
		uc.gone = true
		s.users.Delete(userId)
	}
	uc.mu.Unlock()
}

func (s *MemoryStore) IsOnline(userId string) bool {
	v, ok := s.users.Load(userId)
	if !ok {
		return false
	}
	uc := v.(*userConns)

	uc.mu.Lock()
	online := !uc.gone && len(uc.conns) > 0
	uc.mu.Unlock()

	return online
}

func (s *MemoryStore) FilterOnline(userIds []string) []string {
	online := make([]string, 0, len(userIds))
	for _, userId := range userIds {
		if s.IsOnline(userId) {
			online = append(online, userId)
		}
	}
	return online
}

func (s *MemoryStore) OnlineCount() int {
	count := 0
	s.users.Range(func(_, v any) bool {
		uc := v.(*userConns)
		uc.mu.Lock()
		if !uc.gone && len(uc.conns) > 0 {
			count++
		}
		uc.mu.Unlock()
		return true
	})
	return count
}
