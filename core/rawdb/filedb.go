// FileDB is a persistent key-value store built from one file per key and a
// write-ahead log. A write is durable once its WAL commit marker has been
// fsynced; the per-key data files are then (re)materialised from the WAL on
// the next open if the process died in between.
//
// Layout:
//
//	<dir>/
//	  LOCK   - exclusive file lock held for the lifetime of the handle
//	  wal    - append-only log of committed operations
//	  data/  - one file per key, named hex(key)
package rawdb

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// WAL record types.
const (
	walPut    byte = 0x01
	walDelete byte = 0x02
	walCommit byte = 0x03
)

// FileDB implements Database on the local filesystem. It is safe for
// concurrent use within one process; the LOCK file keeps a second process
// from opening the same directory.
type FileDB struct {
	mu      sync.RWMutex
	dir     string
	dataDir string
	index   map[string][]byte
	wal     *os.File
	lock    *flock.Flock
	closed  bool
}

// NewFileDB opens or creates a database rooted at dir.
func NewFileDB(dir string) (*FileDB, error) {
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("filedb: mkdir: %w", err)
	}
	lock, err := acquireLock(filepath.Join(dir, "LOCK"))
	if err != nil {
		return nil, fmt.Errorf("filedb: lock %s: %w", dir, err)
	}
	db := &FileDB{
		dir:     dir,
		dataDir: dataDir,
		index:   make(map[string][]byte),
		lock:    lock,
	}
	if err := db.recover(); err != nil {
		lock.Unlock()
		return nil, err
	}
	return db, nil
}

// recover loads the data directory, replays committed WAL operations on
// top of it and starts a fresh WAL.
func (db *FileDB) recover() error {
	if err := db.loadIndex(); err != nil {
		return fmt.Errorf("filedb: load index: %w", err)
	}
	walPath := filepath.Join(db.dir, "wal")
	raw, err := os.ReadFile(walPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filedb: read wal: %w", err)
	}
	for _, op := range decodeWAL(raw) {
		if err := db.apply(op); err != nil {
			return fmt.Errorf("filedb: replay wal: %w", err)
		}
	}
	wal, err := os.OpenFile(walPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("filedb: open wal: %w", err)
	}
	db.wal = wal
	return nil
}

func (db *FileDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return false, ErrClosed
	}
	_, ok := db.index[string(key)]
	return ok, nil
}

// Get retrieves the value for key, or ErrNotFound.
func (db *FileDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	val, ok := db.index[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(val), nil
}

// Put stores a key-value pair. When Put returns nil the write has been
// fsynced to the WAL.
func (db *FileDB) Put(key, value []byte) error {
	return db.commit([]batchOp{{key: key, value: value}})
}

// Delete removes a key. Deleting a missing key is not an error.
func (db *FileDB) Delete(key []byte) error {
	return db.commit([]batchOp{{key: key, delete: true}})
}

// commit logs ops followed by one commit marker, syncs, then applies them.
// Either every op in the group survives a crash or none does.
func (db *FileDB) commit(ops []batchOp) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	var buf bytes.Buffer
	for _, op := range ops {
		encodeWALRecord(&buf, op)
	}
	buf.WriteByte(walCommit)
	if _, err := db.wal.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("filedb: wal write: %w", err)
	}
	if err := db.wal.Sync(); err != nil {
		return fmt.Errorf("filedb: wal sync: %w", err)
	}
	for _, op := range ops {
		if err := db.apply(op); err != nil {
			return err
		}
	}
	return nil
}

// apply materialises one operation in the data directory and the index.
func (db *FileDB) apply(op batchOp) error {
	path := db.keyPath(op.key)
	if op.delete {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("filedb: remove data file: %w", err)
		}
		delete(db.index, string(op.key))
		return nil
	}
	if err := writeFileSync(path, op.value); err != nil {
		return err
	}
	db.index[string(op.key)] = bytes.Clone(op.value)
	return nil
}

// Close syncs the WAL and releases the lock.
func (db *FileDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	defer db.lock.Unlock()
	if err := db.wal.Sync(); err != nil {
		db.wal.Close()
		return fmt.Errorf("filedb: close: %w", err)
	}
	return db.wal.Close()
}

// NewIterator returns a snapshot iterator over keys with the given prefix.
func (db *FileDB) NewIterator(prefix []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return newSnapshotIterator(db.index, prefix)
}

// Dir returns the root directory of the database.
func (db *FileDB) Dir() string { return db.dir }

// batchOp is one write or delete inside a WAL commit.
type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// encodeWALRecord appends [op:1][keyLen:4][key][valLen:4][val] to buf.
func encodeWALRecord(buf *bytes.Buffer, op batchOp) {
	code := walPut
	if op.delete {
		code = walDelete
	}
	var n [4]byte
	buf.WriteByte(code)
	binary.BigEndian.PutUint32(n[:], uint32(len(op.key)))
	buf.Write(n[:])
	buf.Write(op.key)
	binary.BigEndian.PutUint32(n[:], uint32(len(op.value)))
	buf.Write(n[:])
	buf.Write(op.value)
}

// decodeWAL returns the operations of every committed group in data, in
// order. A truncated or corrupt tail, and any group lacking its commit
// marker, is dropped.
func decodeWAL(data []byte) []batchOp {
	var (
		committed []batchOp
		pending   []batchOp
		pos       int
	)
	readChunk := func() ([]byte, bool) {
		if pos+4 > len(data) {
			return nil, false
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n < 0 || pos+n > len(data) {
			return nil, false
		}
		chunk := bytes.Clone(data[pos : pos+n])
		pos += n
		return chunk, true
	}
	for pos < len(data) {
		code := data[pos]
		pos++
		switch code {
		case walCommit:
			committed = append(committed, pending...)
			pending = pending[:0]
		case walPut, walDelete:
			key, ok := readChunk()
			if !ok {
				return committed
			}
			value, ok := readChunk()
			if !ok {
				return committed
			}
			pending = append(pending, batchOp{key: key, value: value, delete: code == walDelete})
		default:
			return committed
		}
	}
	return committed
}

// keyPath returns the data file path for key.
func (db *FileDB) keyPath(key []byte) string {
	return filepath.Join(db.dataDir, hex.EncodeToString(key))
}

// loadIndex reads every data file into memory, removing leftovers of
// interrupted writes.
func (db *FileDB) loadIndex() error {
	entries, err := os.ReadDir(db.dataDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(db.dataDir, name))
			continue
		}
		key, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		value, err := os.ReadFile(filepath.Join(db.dataDir, name))
		if err != nil {
			return err
		}
		db.index[string(key)] = value
	}
	return nil
}

// writeFileSync writes value to path through a synced temporary file and
// an atomic rename.
func writeFileSync(path string, value []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("filedb: create tmp: %w", err)
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("filedb: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("filedb: sync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filedb: close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filedb: rename: %w", err)
	}
	return nil
}

// acquireLock takes a non-blocking exclusive lock on path.
func acquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("held by another process")
	}
	return lock, nil
}

var _ Database = (*FileDB)(nil)
