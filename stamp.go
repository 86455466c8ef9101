package anacache

import (
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/jward/anacache/internal/cache"
)

// missingStamp is the stamp of a source that cannot be read.
const missingStamp cache.Stamp = 0

type stampRecord struct {
	size  int64
	mod   time.Time
	stamp cache.Stamp
}

// stamper derives modification stamps from file content. Hashes are
// memoized per path and recomputed when size or mtime change.
type stamper struct {
	memo cmap.ConcurrentMap[string, stampRecord]
}

func newStamper() *stamper {
	return &stamper{memo: cmap.New[stampRecord]()}
}

func contentStamp(b []byte) cache.Stamp {
	return cache.Stamp(xxhash.Sum64(b))
}

// Stamp implements cache.StampFunc.
func (s *stamper) Stamp(id cache.SourceID) (cache.Stamp, bool) {
	path := string(id)
	info, err := os.Stat(path)
	if err != nil {
		s.memo.Remove(path)
		return missingStamp, true
	}
	if r, ok := s.memo.Get(path); ok && r.size == info.Size() && r.mod.Equal(info.ModTime()) {
		return r.stamp, true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.memo.Remove(path)
		return missingStamp, true
	}
	st := contentStamp(data)
	s.memo.Set(path, stampRecord{size: info.Size(), mod: info.ModTime(), stamp: st})
	return st, true
}

func (s *stamper) forget(id cache.SourceID) {
	s.memo.Remove(string(id))
}
