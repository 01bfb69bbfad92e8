// Package boltdb stores the platform's documents as JSON in a bbolt file.
// Every write runs in a single bbolt transaction, so multi-document updates
// (back-references, cascades, completion upserts) are atomic.
package boltdb

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers              = []byte("users")
	bucketUserEmails         = []byte("user_emails") // email -> user id
	bucketCourses            = []byte("courses")
	bucketAnnouncements      = []byte("announcements")
	bucketAssignments        = []byte("assignments")
	bucketSubmissions        = []byte("submissions")
	bucketStudentSubmissions = []byte("student_submissions") // "<assignment id>:<student id>" -> submission id

	allBuckets = [][]byte{
		bucketUsers, bucketUserEmails, bucketCourses, bucketAnnouncements,
		bucketAssignments, bucketSubmissions, bucketStudentSubmissions,
	}
)

type DB struct {
	bolt *bbolt.DB
}

// Open opens (or creates) the bbolt file at path and makes sure every bucket exists.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bolt database")
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "creating bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{bolt: bdb}, nil
}

func (db *DB) Close() error {
	return db.bolt.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.bolt.Path()
}

func put(tx *bbolt.Tx, bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s/%s", bucket, key)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// get decodes the document stored under key, or returns notFound.
func get[T any](tx *bbolt.Tx, bucket []byte, key string, notFound error) (T, error) {
	var out T
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return out, notFound
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.Wrapf(err, "decoding %s/%s", bucket, key)
	}
	return out, nil
}

// list decodes every document of bucket kept by keep (all of them when keep is nil).
func list[T any](tx *bbolt.Tx, bucket []byte, keep func(T) bool) ([]T, error) {
	out := make([]T, 0)
	err := tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var doc T
		if err := json.Unmarshal(v, &doc); err != nil {
			return errors.Wrapf(err, "decoding %s/%s", bucket, k)
		}
		if keep == nil || keep(doc) {
			out = append(out, doc)
		}
		return nil
	})
	return out, err
}

// keysWithPrefix returns the values of the keys of bucket starting with prefix.
func keysWithPrefix(tx *bbolt.Tx, bucket []byte, prefix string) (keys, values []string) {
	c := tx.Bucket(bucket).Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		keys = append(keys, string(k))
		values = append(values, string(v))
	}
	return keys, values
}

func del(tx *bbolt.Tx, bucket []byte, key string) error {
	return tx.Bucket(bucket).Delete([]byte(key))
}

func removeString(slice []string, s string) []string {
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
