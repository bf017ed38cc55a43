package call

import (
	"github.com/Ruslan361/task-168/internal/media"
)

// callSession is the per-machine record of an in-progress call. It exists if
// and only if the owning machine is not idle.
type callSession struct {
	initiator Initiator
	media     media.Session
	// gen distinguishes this session's media callbacks from those of an
	// earlier, already-released session. Media events are asynchronous and
	// may arrive after the machine has moved on; a stale gen means the
	// event must be ignored.
	gen uint64
}

// close releases the media capability. Safe on a nil receiver and safe to
// call twice.
func (s *callSession) close() {
	if s == nil || s.media == nil {
		return
	}
	s.media.Close()
}
