package chat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/logx"
)

func init() {
	logx.Discard()
}

var sinkSeq atomic.Int64

// fakeSink records frames in memory. capacity 0 means unbounded.
type fakeSink struct {
	id       ConnID
	capacity int

	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeCode   int
	closeReason string
}

func newSink() *fakeSink {
	return &fakeSink{id: ConnID(fmt.Sprintf("sink-%d", sinkSeq.Add(1)))}
}

func (s *fakeSink) ID() ConnID { return s.id }

func (s *fakeSink) TrySend(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrConnClosed
	}
	if s.capacity > 0 && len(s.frames) >= s.capacity {
		return ErrSendBufferFull
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed, s.closeCode, s.closeReason = true, code, reason
}

// types returns the type tag of every frame received so far.
func (s *fakeSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var k Kind
		if err := json.Unmarshal(f, &k); err == nil {
			out = append(out, k.Type)
		}
	}
	return out
}

// count returns how many received frames have type typ.
func (s *fakeSink) count(typ string) int {
	n := 0
	for _, t := range s.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

func admit(t *testing.T, h *Hub, u user.User) (*Conn, *fakeSink) {
	t.Helper()
	s := newSink()
	c, err := h.Admit(s, u)
	require.NoError(t, err)
	return c, s
}

func ids(conns []*Conn) []ConnID {
	out := make([]ConnID, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

var (
	alice = user.User{ID: 1, Login: "alice", Role: user.RoleMember}
	bob   = user.User{ID: 2, Login: "bob", Role: user.RoleMember}
	carol = user.User{ID: 3, Login: "carol", Role: user.RoleAdmin}
)
