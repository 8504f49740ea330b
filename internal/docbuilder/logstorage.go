package docbuilder

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

const truncatedNotice = "too much data in the log, truncating it\n"

// LogStorage collects a bounded build log. Writes past the limit are
// dropped and a single notice is appended.
type LogStorage struct {
	mu        sync.Mutex
	max       int
	buf       bytes.Buffer
	truncated bool
}

func NewLogStorage(maxBytes int) *LogStorage {
	return &LogStorage{max: maxBytes}
}

func (s *LogStorage) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.truncated {
		return len(p), nil
	}
	if s.max > 0 && s.buf.Len()+len(p) > s.max {
		s.buf.Write(p[:s.max-s.buf.Len()])
		s.buf.WriteString("\n" + truncatedNotice)
		s.truncated = true
		return len(p), nil
	}
	s.buf.Write(p)
	return len(p), nil
}

func (s *LogStorage) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

func (s *LogStorage) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Logger writes human readable lines into the storage, keeping Info and
// above.
func (s *LogStorage) Logger() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: s, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	return zerolog.New(w).Level(zerolog.InfoLevel)
}
