package transcript

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Keys are "s:<session>:<seq>" with the sequence zero-padded so lexicographic
// key order is sequence order. Session ids must not contain ':'.
const keyPrefix = "s:"

func recordKey(session string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%012d", keyPrefix, session, seq))
}

func sessionPrefix(session string) []byte {
	return []byte(keyPrefix + session + ":")
}

// Badger is a Store backed by BadgerDB v4. Records are msgpack-encoded;
// per-session sequence counters are recovered from the store on first
// append after open.
type Badger struct {
	db *badger.DB

	mu   sync.Mutex
	seqs map[string]uint64
}

// BadgerOptions configures Open.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests.
	InMemory bool

	// Logger sets the badger logger. If nil, a logger suppressing info
	// and debug output is used.
	Logger badger.Logger
}

// Open opens or creates a transcript store.
func Open(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("transcript: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(quietLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("transcript: open: %w", err)
	}
	return &Badger{db: db, seqs: make(map[string]uint64)}, nil
}

// Append journals rec, assigning rec.Seq.
func (s *Badger) Append(rec *Record) error {
	s.mu.Lock()
	seq, ok := s.seqs[rec.Session]
	if !ok {
		last, err := s.lastSeq(rec.Session)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		seq = last
	}
	seq++
	s.seqs[rec.Session] = seq
	s.mu.Unlock()

	rec.Seq = seq
	val, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("transcript: encode record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Session, seq), val)
	})
	if err != nil {
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// lastSeq finds the highest stored sequence for a session by seeking to the
// end of its key range. Called with s.mu held.
func (s *Badger) lastSeq(session string) (uint64, error) {
	prefix := sessionPrefix(session)
	var last uint64
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse seek starts at the largest key <= the seek target.
		seek := append(append([]byte{}, prefix...), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		key := it.Item().Key()
		n, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("transcript: malformed key %q: %w", key, err)
		}
		last = n
		return nil
	})
	return last, err
}

// Session iterates one session's records in sequence order.
func (s *Badger) Session(id string) iter.Seq2[*Record, error] {
	prefix := sessionPrefix(id)
	return func(yield func(*Record, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				var rec Record
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("transcript: decode record %q: %w", it.Item().Key(), err)
				}
				if !yield(&rec, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, fmt.Errorf("transcript: session %s: %w", id, err))
		}
	}
}

// Sessions iterates the distinct session ids in the store. Keys are sorted,
// so each session's records are contiguous.
func (s *Badger) Sessions() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = []byte(keyPrefix)
			iterOpts.PrefetchValues = false
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			last := ""
			for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
				key := string(it.Item().Key())
				rest := key[len(keyPrefix):]
				i := len(rest) - 1
				for i >= 0 && rest[i] != ':' {
					i--
				}
				if i < 0 {
					continue
				}
				id := rest[:i]
				if id == last {
					continue
				}
				last = id
				if !yield(id, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", fmt.Errorf("transcript: sessions: %w", err))
		}
	}
}

func (s *Badger) Close() error {
	return s.db.Close()
}

// quietLogger suppresses badger's info and debug output.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
