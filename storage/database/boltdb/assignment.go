package boltdb

import (
	"context"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func studentSubmissionKey(assignmentID, studentID string) string {
	return assignmentID + ":" + studentID
}

func getAssignment(tx *bbolt.Tx, id string) (assignment.Assignment, error) {
	return get[assignment.Assignment](tx, bucketAssignments, id, assignment.ErrNotFound)
}

func getSubmission(tx *bbolt.Tx, id string) (assignment.Submission, error) {
	return get[assignment.Submission](tx, bucketSubmissions, id, assignment.ErrSubmissionNotFound)
}

// deleteAssignment deletes an assignment and its submissions.
func deleteAssignment(tx *bbolt.Tx, id string) error {
	keys, subIDs := keysWithPrefix(tx, bucketStudentSubmissions, id+":")
	for i := range keys {
		if err := del(tx, bucketSubmissions, subIDs[i]); err != nil {
			return err
		}
		if err := del(tx, bucketStudentSubmissions, keys[i]); err != nil {
			return err
		}
	}
	return del(tx, bucketAssignments, id)
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		if _, err := getCourse(tx, a.CourseID); err != nil {
			return err
		}
		return put(tx, bucketAssignments, a.ID, a)
	})
	if err != nil {
		return assignment.Assignment{}, wrapErr(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string) (a assignment.Assignment, err error) {
	err = repo.db.bolt.View(func(tx *bbolt.Tx) error {
		a, err = getAssignment(tx, id)
		return err
	})
	return a, err
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, courseID string) ([]assignment.Assignment, error) {
	var assignments []assignment.Assignment
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		assignments, err = list(tx, bucketAssignments, func(a assignment.Assignment) bool { return a.CourseID == courseID })
		return err
	})
	if err != nil {
		return nil, wrapErr(err, "selecting assignments")
	}
	sort.SliceStable(assignments, func(i, j int) bool { return assignments[i].Deadline.Before(assignments[j].Deadline) })
	return assignments, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	var updated assignment.Assignment
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		stored, err := getAssignment(tx, a.ID)
		if err != nil {
			return err
		}
		stored.Title = a.Title
		stored.Description = a.Description
		stored.Deadline = a.Deadline
		stored.File = a.File
		stored.UpdatedAt = a.UpdatedAt
		updated = stored
		return put(tx, bucketAssignments, stored.ID, stored)
	})
	if err != nil {
		return assignment.Assignment{}, wrapErr(err, "updating assignment")
	}
	return updated, nil
}

func (repo assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		if _, err := getAssignment(tx, id); err != nil {
			return err
		}
		return deleteAssignment(tx, id)
	})
	return wrapErr(err, "deleting assignment")
}

func (repo assignmentRepository) SaveSubmission(ctx context.Context, s assignment.Submission) (assignment.Submission, error) {
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		if _, err := getAssignment(tx, s.AssignmentID); err != nil {
			return err
		}

		key := studentSubmissionKey(s.AssignmentID, s.StudentID)
		index := tx.Bucket(bucketStudentSubmissions)
		if prevID := index.Get([]byte(key)); prevID != nil {
			prev, err := getSubmission(tx, string(prevID))
			if err != nil {
				return err
			}
			if prev.IsGraded() {
				return assignment.ErrSubmissionGraded
			}
			s.ID = prev.ID
		} else if s.ID == "" {
			s.ID = core.NewID()
		}
		s.Mark, s.MarkedAt = nil, nil

		if err := index.Put([]byte(key), []byte(s.ID)); err != nil {
			return err
		}
		return put(tx, bucketSubmissions, s.ID, s)
	})
	if err != nil {
		if err == assignment.ErrSubmissionGraded {
			return assignment.Submission{}, err
		}
		return assignment.Submission{}, wrapErr(err, "saving submission")
	}
	return s, nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string) (s assignment.Submission, err error) {
	err = repo.db.bolt.View(func(tx *bbolt.Tx) error {
		s, err = getSubmission(tx, id)
		return err
	})
	return s, err
}

func (repo assignmentRepository) GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (s assignment.Submission, err error) {
	err = repo.db.bolt.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketStudentSubmissions).Get([]byte(studentSubmissionKey(assignmentID, studentID)))
		if id == nil {
			return assignment.ErrSubmissionNotFound
		}
		s, err = getSubmission(tx, string(id))
		return err
	})
	return s, err
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]assignment.Submission, error) {
	subs := make([]assignment.Submission, 0)
	err := repo.db.bolt.View(func(tx *bbolt.Tx) error {
		_, ids := keysWithPrefix(tx, bucketStudentSubmissions, assignmentID+":")
		for _, id := range ids {
			s, err := getSubmission(tx, id)
			if err != nil {
				return err
			}
			subs = append(subs, s)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err, "selecting submissions")
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return subs, nil
}

func (repo assignmentRepository) GradeSubmission(ctx context.Context, id string, mark float64, markedAt time.Time) (s assignment.Submission, err error) {
	err = repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		s, err = getSubmission(tx, id)
		if err != nil {
			return err
		}
		s.Mark, s.MarkedAt = &mark, &markedAt
		return put(tx, bucketSubmissions, s.ID, s)
	})
	if err != nil {
		return assignment.Submission{}, wrapErr(err, "grading submission")
	}
	return s, nil
}
