// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package image implements the durable Image Store: a transactional
// key/value namespace of named Objects (modules and instances), backed by
// an embedded badger database. Keys are string-prefixed the way the
// teacher's storage/disk package prefixes its own keys, simplified since
// this store has no partitioning concept.
package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mamidon/othismo/internal/obslog"
)

// ObjectKind distinguishes a Module template from an Instance template.
type ObjectKind string

const (
	ObjectKindModule   ObjectKind = "MODULE"
	ObjectKindInstance ObjectKind = "INSTANCE"
)

// LinkKind identifies the relationship a Link records. InstanceOf is the
// only kind this kernel commits today; the schema carries the tag so
// additional kinds can be added without a migration.
type LinkKind string

const (
	LinkKindInstanceOf LinkKind = "instance_of"
)

// Object is the persisted payload of a namespace entry: either a Module
// template or an Instance template, tagged by kind.
type Object struct {
	Kind  ObjectKind
	Bytes []byte
}

const (
	objectPrefix    = "o/"
	namespacePrefix = "n/"
	linkPrefix      = "l/"
	metaNextKey     = "meta/next_object_key"
)

// Store is a badger-backed implementation of the Image Store described in
// spec.md §4.4: a namespace of named Objects plus a Link table enforcing
// referential integrity.
type Store struct {
	db *badger.DB
}

// Create opens a brand-new image at path, failing if one already exists.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errImageAlreadyExists(path)
	} else if !os.IsNotExist(err) {
		return nil, errInternal(err)
	}
	return open(path)
}

// Open opens an existing image at path, failing with
// CodeImageDoesNotExist if no image has been created there yet
// (badger.Open would otherwise happily create one).
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errImageDoesNotExist(path)
	} else if err != nil {
		return nil, errInternal(err)
	}
	return open(path)
}

func open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, errInternal(err)
	}
	obslog.WithField("path", path).Debug("image opened")
	return &Store{db: db}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

func namespaceKey(path string) []byte {
	return []byte(namespacePrefix + path)
}

func objectKeyFor(key uint64) []byte {
	buf := make([]byte, len(objectPrefix)+8)
	copy(buf, objectPrefix)
	binary.BigEndian.PutUint64(buf[len(objectPrefix):], key)
	return buf
}

func linkKey(kind LinkKind, to, from string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", linkPrefix, kind, to, from))
}

func linkPrefixForTo(kind LinkKind, to string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/", linkPrefix, kind, to))
}

type storedObject struct {
	Kind  ObjectKind
	Bytes []byte
}

func encodeObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(storedObject{Kind: obj.Kind, Bytes: obj.Bytes}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeObject(data []byte) (Object, error) {
	var s storedObject
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return Object{}, err
	}
	return Object{Kind: s.Kind, Bytes: s.Bytes}, nil
}

func nextObjectKey(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(metaNextKey))
	var next uint64
	if err == nil {
		if err := item.Value(func(val []byte) error {
			next = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next+1)
	if err := txn.Set([]byte(metaNextKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// ImportObject adds obj to the namespace under name, failing with
// ErrObjectAlreadyExists if name is already taken.
func (s *Store) ImportObject(ctx context.Context, name string, obj Object) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(namespaceKey(name)); err == nil {
			return errObjectAlreadyExists(name)
		} else if err != badger.ErrKeyNotFound {
			return errInternal(err)
		}

		key, err := nextObjectKey(txn)
		if err != nil {
			return errInternal(err)
		}

		payload, err := encodeObject(obj)
		if err != nil {
			return errInternal(err)
		}
		if err := txn.Set(objectKeyFor(key), payload); err != nil {
			return errInternal(err)
		}

		okBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(okBuf, key)
		if err := txn.Set(namespaceKey(name), okBuf); err != nil {
			return errInternal(err)
		}
		return nil
	})
}

// GetObject looks up the Object named name.
func (s *Store) GetObject(ctx context.Context, name string) (Object, error) {
	var obj Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(namespaceKey(name))
		if err == badger.ErrKeyNotFound {
			return errObjectDoesNotExist(name)
		} else if err != nil {
			return errInternal(err)
		}

		var objKey []byte
		if err := item.Value(func(val []byte) error {
			objKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return errInternal(err)
		}

		oItem, err := txn.Get(append([]byte(objectPrefix), objKey...))
		if err != nil {
			return errInternal(err)
		}
		return oItem.Value(func(val []byte) error {
			decoded, err := decodeObject(val)
			if err != nil {
				return err
			}
			obj = decoded
			return nil
		})
	})
	return obj, err
}

// ObjectExists reports whether name resolves to a namespace entry.
func (s *Store) ObjectExists(ctx context.Context, name string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(namespaceKey(name))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return errInternal(err)
		}
		exists = true
		return nil
	})
	return exists, err
}

// RemoveObject deletes the namespace entry and object named name, failing
// with ErrObjectNotFree if any Link still points into it.
func (s *Store) RemoveObject(ctx context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(namespaceKey(name))
		if err == badger.ErrKeyNotFound {
			return errObjectDoesNotExist(name)
		} else if err != nil {
			return errInternal(err)
		}

		var objKey []byte
		if err := item.Value(func(val []byte) error {
			objKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return errInternal(err)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := linkPrefixForTo(LinkKindInstanceOf, name)
		it.Seek(prefix)
		if it.ValidForPrefix(prefix) {
			return errObjectNotFree(name)
		}

		if err := txn.Delete(namespaceKey(name)); err != nil {
			return errInternal(err)
		}
		if err := txn.Delete(append([]byte(objectPrefix), objKey...)); err != nil {
			return errInternal(err)
		}
		return nil
	})
}

// ListObjects returns every namespace path having prefix as a literal
// string prefix, in unspecified order.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		full := []byte(namespacePrefix + prefix)
		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			key := it.Item().KeyCopy(nil)
			paths = append(paths, string(key[len(namespacePrefix):]))
		}
		return nil
	})
	return paths, err
}

// AddLink records that from depends on to, preventing to's removal while
// the link exists.
func (s *Store) AddLink(ctx context.Context, kind LinkKind, from, to string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(linkKey(kind, to, from), []byte{})
	})
}

// RemoveLink deletes a previously-added link.
func (s *Store) RemoveLink(ctx context.Context, kind LinkKind, from, to string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(linkKey(kind, to, from))
	})
}

// RemoveLinksFrom deletes every link of the given kind whose from side is
// named from, regardless of its to side. Used by delete-instance to clean
// up the InstanceOf link an instance holds on its parent module; link
// rows are keyed by their to side, so this does a linear scan of the
// kind's rows rather than a point lookup.
func (s *Store) RemoveLinksFrom(ctx context.Context, kind LinkKind, from string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s%s/", linkPrefix, kind))
		suffix := "/" + from
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if strings.HasSuffix(string(key), suffix) {
				toDelete = append(toDelete, key)
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return errInternal(err)
			}
		}
		return nil
	})
}

// ReplaceInstance atomically swaps the Instance template stored under
// name for newBytes — the Dehydrated→Committed transition of an Execution
// Session. It never leaves the namespace entry pointing at a missing
// object: the prior object row is overwritten in place.
func (s *Store) ReplaceInstance(ctx context.Context, name string, newBytes []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(namespaceKey(name))
		if err == badger.ErrKeyNotFound {
			return errObjectDoesNotExist(name)
		} else if err != nil {
			return errInternal(err)
		}

		var objKey []byte
		if err := item.Value(func(val []byte) error {
			objKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return errInternal(err)
		}

		payload, err := encodeObject(Object{Kind: ObjectKindInstance, Bytes: newBytes})
		if err != nil {
			return errInternal(err)
		}
		return txn.Set(append([]byte(objectPrefix), objKey...), payload)
	})
}
