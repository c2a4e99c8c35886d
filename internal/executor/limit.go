package executor

import "bytes"

// limitedBuffer keeps the first limit bytes written and silently drops the
// rest so a chatty child never blocks on a full pipe. A zero limit keeps
// everything.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     uint64
	truncated bool
}

func newLimitedBuffer(limit uint64) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit == 0 {
		return l.buf.Write(p)
	}
	used := uint64(l.buf.Len())
	if used >= l.limit {
		if len(p) > 0 {
			l.truncated = true
		}
		return len(p), nil
	}
	remaining := l.limit - used
	if uint64(len(p)) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

func (l *limitedBuffer) Truncated() bool {
	return l.truncated
}
