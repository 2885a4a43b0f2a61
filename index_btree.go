package kgraph

import (
	"bytes"
	"encoding/binary"
	"math"

	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Ordered property index, one bbolt bucket per index. Keys are the encoded
// property values followed by the big-endian node ID, so equality, range and
// prefix lookups are all cursor seeks and a key is unique per (value, node)
// pair: inserting a second node under the same value adds a key, it never
// overwrites. Values are empty; the key carries everything.
// --------------------------------------------------------------------------

type orderedIndex struct {
	definition IndexDef
	db         *bolt.DB
	bucket     []byte
}

func newOrderedIndex(def IndexDef, db *bolt.DB) (*orderedIndex, error) {
	idx := &orderedIndex{definition: def, db: db, bucket: []byte("idx:" + def.Name)}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(idx.bucket)
		return err
	})
	if err != nil {
		return nil, storageErrorf("create index bucket %s: %v", def.Name, err)
	}
	return idx, nil
}

func (idx *orderedIndex) def() *IndexDef { return &idx.definition }

// keyFor builds the full bucket key for a node, or ok=false when the node
// lacks one of the indexed properties. Composite indexes only cover nodes
// carrying every component.
func (idx *orderedIndex) keyFor(n *Node) ([]byte, bool) {
	var key []byte
	for _, prop := range idx.definition.Properties {
		v, ok := n.Props[prop]
		if !ok {
			return nil, false
		}
		enc, ok := encodeIndexValue(v)
		if !ok {
			return nil, false
		}
		key = append(key, enc...)
	}
	return appendNodeID(key, n.ID), true
}

func (idx *orderedIndex) insert(n *Node) error {
	if !n.HasLabel(idx.definition.Label) {
		return nil
	}
	key, ok := idx.keyFor(n)
	if !ok {
		return nil
	}
	err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(idx.bucket).Put(key, nil)
	})
	if err != nil {
		return storageErrorf("index %s insert: %v", idx.definition.Name, err)
	}
	return nil
}

func (idx *orderedIndex) remove(n *Node) error {
	key, ok := idx.keyFor(n)
	if !ok {
		return nil
	}
	err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(idx.bucket).Delete(key)
	})
	if err != nil {
		return storageErrorf("index %s remove: %v", idx.definition.Name, err)
	}
	return nil
}

// seek returns the candidate node IDs whose indexed values equal the given
// tuple. values align with the index property list.
func (idx *orderedIndex) seek(values []any) ([]NodeID, error) {
	if len(values) != len(idx.definition.Properties) {
		return nil, queryErrorf("index %s expects %d values, got %d",
			idx.definition.Name, len(idx.definition.Properties), len(values))
	}
	var prefix []byte
	for _, v := range values {
		enc, ok := encodeIndexValue(v)
		if !ok {
			return nil, nil
		}
		prefix = append(prefix, enc...)
	}
	return idx.scanPrefix(prefix)
}

// scanRange returns candidates whose single indexed value lies in
// [low, high]; a nil bound is open.
func (idx *orderedIndex) scanRange(low, high any) ([]NodeID, error) {
	if len(idx.definition.Properties) != 1 {
		return nil, queryErrorf("range scan needs a single-property index, %s has %d",
			idx.definition.Name, len(idx.definition.Properties))
	}
	var ids []NodeID
	err := idx.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(idx.bucket).Cursor()
		var k []byte
		if low != nil {
			enc, ok := encodeIndexValue(low)
			if !ok {
				return nil
			}
			k, _ = c.Seek(enc)
		} else {
			k, _ = c.First()
		}
		var highEnc []byte
		if high != nil {
			enc, ok := encodeIndexValue(high)
			if !ok {
				return nil
			}
			highEnc = enc
		}
		for ; k != nil; k, _ = c.Next() {
			if highEnc != nil {
				// Compare the value part only; the key ends in the node ID.
				val := k[:len(k)-8]
				if bytes.Compare(val, highEnc) > 0 {
					break
				}
			}
			ids = append(ids, nodeIDFromKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, storageErrorf("index %s range scan: %v", idx.definition.Name, err)
	}
	return ids, nil
}

// scanStringPrefix returns candidates whose single indexed string value
// starts with the given prefix.
func (idx *orderedIndex) scanStringPrefix(prefix string) ([]NodeID, error) {
	if len(idx.definition.Properties) != 1 {
		return nil, queryErrorf("prefix scan needs a single-property index, %s has %d",
			idx.definition.Name, len(idx.definition.Properties))
	}
	enc, ok := encodeIndexValue(prefix)
	if !ok {
		return nil, nil
	}
	// Drop the terminator so longer strings still match.
	return idx.scanPrefix(enc[:len(enc)-1])
}

func (idx *orderedIndex) scanPrefix(prefix []byte) ([]NodeID, error) {
	var ids []NodeID
	err := idx.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(idx.bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, nodeIDFromKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, storageErrorf("index %s seek: %v", idx.definition.Name, err)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Key encoding. Each value encodes as a type tag plus an order-preserving
// payload, so bbolt's byte order matches the engine's value order within a
// type. Numbers normalize to float64 with the sign-flip trick; strings are
// NUL-terminated so "ab" orders before "abc" and prefixes stay scannable.
// ---------------------------------------------------------------------------

const (
	keyTagNull   byte = 0x00
	keyTagNumber byte = 0x01
	keyTagString byte = 0x02
	keyTagBool   byte = 0x03
)

func encodeIndexValue(v any) ([]byte, bool) {
	switch t := v.(type) {
	case nil:
		return []byte{keyTagNull}, true
	case int64:
		return encodeNumberKey(float64(t)), true
	case int:
		return encodeNumberKey(float64(t)), true
	case float64:
		return encodeNumberKey(t), true
	case string:
		out := make([]byte, 0, len(t)+2)
		out = append(out, keyTagString)
		out = append(out, t...)
		return append(out, 0x00), true
	case bool:
		if t {
			return []byte{keyTagBool, 0x01}, true
		}
		return []byte{keyTagBool, 0x00}, true
	}
	return nil, false
}

func encodeNumberKey(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	out := make([]byte, 9)
	out[0] = keyTagNumber
	binary.BigEndian.PutUint64(out[1:], bits)
	return out
}

func appendNodeID(key []byte, id NodeID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return append(key, buf[:]...)
}

func nodeIDFromKey(k []byte) NodeID {
	return NodeID(binary.BigEndian.Uint64(k[len(k)-8:]))
}
