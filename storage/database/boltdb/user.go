package boltdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// userRecord is the stored form of a user; the password hash is hidden from the API encoding.
type userRecord struct {
	user.User
	PasswordHash []byte `json:"password_hash"`
}

func toUserRecord(usr user.User) userRecord {
	return userRecord{User: usr, PasswordHash: usr.PasswordHash}
}

func (rec userRecord) user() user.User {
	usr := rec.User
	usr.PasswordHash = rec.PasswordHash
	return usr
}

var userComparators = comparators[user.User]{
	"first_name": func(a, b user.User) int { return strings.Compare(a.FirstName, b.FirstName) },
	"last_name":  func(a, b user.User) int { return strings.Compare(a.LastName, b.LastName) },
	"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"role":       func(a, b user.User) int { return strings.Compare(a.Role, b.Role) },
	"year":       func(a, b user.User) int { return cmp.Compare(a.AcademicYear, b.AcademicYear) },
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	return repo.db.bolt.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUserEmails).Get([]byte(email))
		if id == nil {
			return nil
		}
		for _, u := range excludedUsers {
			if u.ID == string(id) {
				return nil
			}
		}
		return user.ErrEmailExists
	})
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(bucketUserEmails)
		if emails.Get([]byte(usr.Email)) != nil {
			return user.ErrEmailExists
		}
		if err := emails.Put([]byte(usr.Email), []byte(usr.ID)); err != nil {
			return err
		}
		return put(tx, bucketUsers, usr.ID, toUserRecord(usr))
	})
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	var rec userRecord
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		rec, err = get[userRecord](tx, bucketUsers, id, user.ErrNotFound)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return rec.user(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var rec userRecord
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		id := tx.Bucket(bucketUserEmails).Get([]byte(email))
		if id == nil {
			return user.ErrNotFound
		}
		rec, err = get[userRecord](tx, bucketUsers, string(id), user.ErrNotFound)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return rec.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var recs []userRecord
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		recs, err = list(tx, bucketUsers, func(rec userRecord) bool { return filter.Match(rec.User) })
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}

	users := make([]user.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.user())
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "first_name", Ascending: true}, {Field: "last_name", Ascending: true}}
	}
	sortDocs(users, ordering, userComparators)
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		prev, err := get[userRecord](tx, bucketUsers, usr.ID, user.ErrNotFound)
		if err != nil {
			return err
		}

		if prev.Email != usr.Email {
			emails := tx.Bucket(bucketUserEmails)
			if owner := emails.Get([]byte(usr.Email)); owner != nil && string(owner) != usr.ID {
				return user.ErrEmailExists
			}
			if err = emails.Delete([]byte(prev.Email)); err != nil {
				return err
			}
			if err = emails.Put([]byte(usr.Email), []byte(usr.ID)); err != nil {
				return err
			}
		}
		usr.CreatedAt = prev.CreatedAt
		return put(tx, bucketUsers, usr.ID, toUserRecord(usr))
	})
	if err != nil {
		if err == user.ErrNotFound {
			return user.User{}, err
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}
