package kgraph

import (
	"encoding/binary"
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Persistence collaborator. The engine delegates durability to an
// EntityStore: Flush walks committed state through Put, LoadFrom rebuilds
// the in-memory arena from Get/ForEach. Values are msgpack payloads guarded
// by a CRC32 checksum so a torn or corrupted record fails loudly on read
// instead of resurrecting garbage.
// --------------------------------------------------------------------------

// EntityRef addresses one stored entity: "n/<id>" for nodes, "r/<id>" for
// relationships.
type EntityRef string

func nodeRef(id NodeID) EntityRef {
	return EntityRef("n/" + strconv.FormatUint(uint64(id), 10))
}

func relRef(id RelID) EntityRef {
	return EntityRef("r/" + strconv.FormatUint(uint64(id), 10))
}

// EntityStore persists graph entities. Put accepts *Node or *Relationship;
// Get returns the same. Implementations must be safe for concurrent use.
type EntityStore interface {
	Put(entity any) (EntityRef, error)
	Get(ref EntityRef) (any, error)
	Delete(ref EntityRef) error
	ForEach(fn func(ref EntityRef, entity any) error) error
	Close() error
}

// ---------------------------------------------------------------------------
// Wire records
// ---------------------------------------------------------------------------

type storedNode struct {
	ID     uint64         `msgpack:"id"`
	Labels []string       `msgpack:"labels,omitempty"`
	Props  map[string]any `msgpack:"props,omitempty"`
}

type storedRel struct {
	ID    uint64         `msgpack:"id"`
	Type  string         `msgpack:"type"`
	Start uint64         `msgpack:"start"`
	End   uint64         `msgpack:"end"`
	Props map[string]any `msgpack:"props,omitempty"`
}

// encodeEntity produces ref and checksummed value bytes for an entity.
func encodeEntity(entity any) (EntityRef, []byte, error) {
	var ref EntityRef
	var payload []byte
	var err error
	switch e := entity.(type) {
	case *Node:
		ref = nodeRef(e.ID)
		payload, err = msgpack.Marshal(storedNode{
			ID: uint64(e.ID), Labels: e.Labels, Props: e.Props,
		})
	case *Relationship:
		ref = relRef(e.ID)
		payload, err = msgpack.Marshal(storedRel{
			ID: uint64(e.ID), Type: e.Type,
			Start: uint64(e.Start), End: uint64(e.End), Props: e.Props,
		})
	default:
		return "", nil, storageErrorf("cannot persist %T", entity)
	}
	if err != nil {
		return "", nil, storageErrorf("encode %s: %v", ref, err)
	}
	value := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(value, crc32.ChecksumIEEE(payload))
	copy(value[4:], payload)
	return ref, value, nil
}

// decodeEntity verifies the checksum and rebuilds the entity named by ref.
func decodeEntity(ref EntityRef, value []byte) (any, error) {
	if len(value) < 4 {
		return nil, storageErrorf("entity %s: record truncated", ref)
	}
	payload := value[4:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(value) {
		return nil, storageErrorf("entity %s: checksum mismatch", ref)
	}
	switch {
	case strings.HasPrefix(string(ref), "n/"):
		var sn storedNode
		if err := msgpack.Unmarshal(payload, &sn); err != nil {
			return nil, storageErrorf("decode %s: %v", ref, err)
		}
		return &Node{ID: NodeID(sn.ID), Labels: sn.Labels, Props: normalizeProps(sn.Props)}, nil
	case strings.HasPrefix(string(ref), "r/"):
		var sr storedRel
		if err := msgpack.Unmarshal(payload, &sr); err != nil {
			return nil, storageErrorf("decode %s: %v", ref, err)
		}
		return &Relationship{
			ID: RelID(sr.ID), Type: sr.Type,
			Start: NodeID(sr.Start), End: NodeID(sr.End),
			Props: normalizeProps(sr.Props),
		}, nil
	}
	return nil, storageErrorf("entity %s: unknown ref kind", ref)
}

// normalizeProps maps msgpack's decoded scalar types back onto the engine's
// value model: integers widen to int64, floats to float64.
func normalizeProps(props map[string]any) Props {
	if props == nil {
		return Props{}
	}
	out := make(Props, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	}
	return v
}

// ---------------------------------------------------------------------------
// BoltStore
// ---------------------------------------------------------------------------

var (
	bucketNodes = []byte("nodes")
	bucketRels  = []byte("rels")
)

// BoltStore is the bbolt-backed EntityStore: one bucket per entity kind,
// big-endian ID keys, checksummed msgpack values.
type BoltStore struct {
	db   *bolt.DB
	owns bool
}

// NewBoltStore opens (or creates) a bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, storageErrorf("open entity store %s: %v", path, err)
	}
	s := &BoltStore{db: db, owns: true}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewBoltStoreOn wraps an already-open bbolt handle, shared with other
// users such as the ordered indexes. Close becomes a no-op.
func NewBoltStoreOn(db *bolt.DB) (*BoltStore, error) {
	s := &BoltStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) init() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNodes); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRels)
		return err
	})
	if err != nil {
		return storageErrorf("init entity store: %v", err)
	}
	return nil
}

func refParts(ref EntityRef) (bucket []byte, key []byte, err error) {
	s := string(ref)
	if len(s) < 3 || s[1] != '/' {
		return nil, nil, storageErrorf("malformed entity ref %q", ref)
	}
	id, perr := strconv.ParseUint(s[2:], 10, 64)
	if perr != nil {
		return nil, nil, storageErrorf("malformed entity ref %q", ref)
	}
	key = make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	switch s[0] {
	case 'n':
		return bucketNodes, key, nil
	case 'r':
		return bucketRels, key, nil
	}
	return nil, nil, storageErrorf("malformed entity ref %q", ref)
}

func (s *BoltStore) Put(entity any) (EntityRef, error) {
	ref, value, err := encodeEntity(entity)
	if err != nil {
		return "", err
	}
	bucket, key, err := refParts(ref)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
	if err != nil {
		return "", storageErrorf("put %s: %v", ref, err)
	}
	return ref, nil
}

func (s *BoltStore) Get(ref EntityRef) (any, error) {
	bucket, key, err := refParts(ref)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, storageErrorf("get %s: %v", ref, err)
	}
	if value == nil {
		return nil, storageErrorf("entity %s does not exist", ref)
	}
	return decodeEntity(ref, value)
}

func (s *BoltStore) Delete(ref EntityRef) error {
	bucket, key, err := refParts(ref)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
	if err != nil {
		return storageErrorf("delete %s: %v", ref, err)
	}
	return nil
}

// ForEach visits every stored entity, nodes before relationships so loading
// in visit order never sees a relationship without its endpoints.
func (s *BoltStore) ForEach(fn func(ref EntityRef, entity any) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		visit := func(bucket []byte, kind func(uint64) EntityRef) error {
			return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
				ref := kind(binary.BigEndian.Uint64(k))
				entity, err := decodeEntity(ref, v)
				if err != nil {
					return err
				}
				return fn(ref, entity)
			})
		}
		if err := visit(bucketNodes, func(id uint64) EntityRef { return nodeRef(NodeID(id)) }); err != nil {
			return err
		}
		return visit(bucketRels, func(id uint64) EntityRef { return relRef(RelID(id)) })
	})
	if err != nil {
		return wrapUnexpected("entity store scan", err)
	}
	return nil
}

// Close closes the underlying bbolt file unless the handle is shared.
func (s *BoltStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// MemoryEntityStore
// ---------------------------------------------------------------------------

// MemoryEntityStore keeps encoded records in a map. It runs entities through
// the same codec as BoltStore, so tests exercise encoding without a file.
type MemoryEntityStore struct {
	mu      sync.RWMutex
	records map[EntityRef][]byte
}

func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{records: make(map[EntityRef][]byte)}
}

func (s *MemoryEntityStore) Put(entity any) (EntityRef, error) {
	ref, value, err := encodeEntity(entity)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.records[ref] = value
	s.mu.Unlock()
	return ref, nil
}

func (s *MemoryEntityStore) Get(ref EntityRef) (any, error) {
	s.mu.RLock()
	value, ok := s.records[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("entity %s does not exist", ref)
	}
	return decodeEntity(ref, value)
}

func (s *MemoryEntityStore) Delete(ref EntityRef) error {
	s.mu.Lock()
	delete(s.records, ref)
	s.mu.Unlock()
	return nil
}

func (s *MemoryEntityStore) ForEach(fn func(ref EntityRef, entity any) error) error {
	s.mu.RLock()
	refs := make([]EntityRef, 0, len(s.records))
	for ref := range s.records {
		refs = append(refs, ref)
	}
	s.mu.RUnlock()

	// "n/" sorts before "r/", so endpoints load before their relationships.
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	for _, ref := range refs {
		entity, err := s.Get(ref)
		if err != nil {
			return err
		}
		if err := fn(ref, entity); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryEntityStore) Close() error { return nil }
