package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/testutil"
)

func createAssignment(t *testing.T, app testApp, c course.Course, title string, deadline time.Time) assignment.Assignment {
	t.Helper()
	now := time.Now().UTC()
	a, err := app.assignments.CreateAssignment(context.Background(), assignment.Assignment{
		Title:     title,
		Deadline:  deadline.UTC(),
		CourseID:  c.ID,
		TeacherID: c.TeacherID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return a
}

func submit(t *testing.T, app testApp, a assignment.Assignment, usr user.User, notes string) *http.Response {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/submissions", getToken(t, app.conf, usr),
		marchallObj(t, assignment.NewSubmission{Notes: notes}))
	app.ServeHTTP(rec, req)
	return rec.Result()
}

func Test_assignmentApi_create(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	foreign := testutil.CreateCourse(t, app.courses, fx.otherTeacher.ID, "Optics", bachelor2)
	teacherToken := getToken(t, app.conf, fx.teacher)
	deadline := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)

	body := func(courseID string) []byte {
		return marchallObj(t, assignment.NewAssignment{Title: "Homework 1", Deadline: deadline, CourseID: courseID})
	}
	tests := []httpTest{
		{name: "anonymous", body: body(fx.signals.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "student", body: body(fx.signals.ID), token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{
			name: "course of another teacher", body: body(foreign.ID), token: teacherToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
		{
			name: "unknown course", body: body(core.NewID()), token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
		{
			name: "missing fields", body: marchallObj(t, map[string]string{"course_id": fx.signals.ID}), token: teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required", "deadline": "this field is required"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("json", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", teacherToken, body(fx.signals.ID))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got assignment.Assignment
		unmarshal(t, rec, &got)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, fx.signals.ID, got.CourseID)
		assert.Equal(t, fx.teacher.ID, got.TeacherID)
		assert.True(t, deadline.Equal(got.Deadline))
		assert.Nil(t, got.File)
	})

	t.Run("multipart with file", func(t *testing.T) {
		fields := map[string]string{
			"title":     "Homework 2",
			"course_id": fx.networks.ID,
			"deadline":  deadline.Format(time.RFC3339),
		}
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/assignments", teacherToken, fields, "file", "hw2.pdf", pdfContent)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got assignment.Assignment
		unmarshal(t, rec, &got)
		require.NotNil(t, got.File)
		assert.Equal(t, assignment.Attachment{FileName: "hw2.pdf", FileType: "application/pdf", Size: int64(len(pdfContent))}, *got.File)

		req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+got.ID+"/file", getToken(t, app.conf, fx.master))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, pdfContent, rec.Body.Bytes())
	})
}

func Test_assignmentApi_retrieve(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	now := time.Now()
	later := createAssignment(t, app, fx.signals, "Homework 2", now.Add(14*24*time.Hour))
	sooner := createAssignment(t, app, fx.signals, "Homework 1", now.Add(7*24*time.Hour))
	path := "/v1/assignments/" + sooner.ID

	runTests(t, app, []httpTest{
		{name: "anonymous", path: path, wantCode: http.StatusUnauthorized},
		{
			name: "unknown", path: "/v1/assignments/" + core.NewID(), token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "assignment not found"}),
		},
		{name: "owner", path: path, token: getToken(t, app.conf, fx.teacher), wantCode: http.StatusOK, wantData: marchallObj(t, sooner)},
		{name: "enrolled student", path: path, token: getToken(t, app.conf, fx.bachelor), wantCode: http.StatusOK, wantData: marchallObj(t, sooner)},
		{
			name: "other cohort", path: path, token: getToken(t, app.conf, fx.master),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyCohortMismatch)),
		},
		{
			name: "other teacher", path: path, token: getToken(t, app.conf, fx.otherTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
		{
			name: "no file", path: path + "/file", token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "file not found"}),
		},
		{
			name: "course assignments, by deadline", path: "/v1/courses/" + fx.signals.ID + "/assignments", token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusOK, wantData: marchallList(t, sooner, later),
		},
		{
			name: "course assignments out of cohort", path: "/v1/courses/" + fx.signals.ID + "/assignments", token: getToken(t, app.conf, fx.master),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyCohortMismatch)),
		},
		{
			name: "course assignments, anonymous", path: "/v1/courses/" + fx.signals.ID + "/assignments",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
	})
}

func Test_assignmentApi_update(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	a := createAssignment(t, app, fx.signals, "Homework 1", time.Now().Add(24*time.Hour))
	path := "/v1/assignments/" + a.ID
	rename := marchallObj(t, map[string]string{"title": "Homework 1 (revised)"})

	runTests(t, app, []httpTest{
		{
			name: "enrolled student", method: http.MethodPut, path: path, body: rename, token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{
			name: "other teacher", method: http.MethodPut, path: path, body: rename, token: getToken(t, app.conf, fx.otherTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
	})

	t.Run("owner", func(t *testing.T) {
		deadline := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
		body := marchallObj(t, map[string]interface{}{"title": "Homework 1 (revised)", "deadline": deadline})
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, app.conf, fx.teacher), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got assignment.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, "Homework 1 (revised)", got.Title)
		assert.True(t, deadline.Equal(got.Deadline))
		assert.Equal(t, a.CourseID, got.CourseID)
	})
}

func Test_assignmentApi_destroy(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	a := createAssignment(t, app, fx.signals, "Homework 1", time.Now().Add(24*time.Hour))
	require.Equal(t, http.StatusCreated, submit(t, app, a, fx.bachelor, "done").StatusCode)
	path := "/v1/assignments/" + a.ID

	runTests(t, app, []httpTest{
		{
			name: "enrolled student", method: http.MethodDelete, path: path, token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{name: "owner", method: http.MethodDelete, path: path, token: getToken(t, app.conf, fx.teacher), wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: getToken(t, app.conf, fx.teacher), wantCode: http.StatusNotFound},
	})

	_, err := app.assignments.GetStudentSubmission(context.Background(), a.ID, fx.bachelor.ID)
	assert.True(t, core.IsNotFound(err), "submissions are deleted with the assignment")
}

func Test_assignmentApi_submissions(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	classmate := testutil.CreateStudent(t, app.users, "Zuri", "zuri@darasa.test", validPassword, bachelor2)
	a := createAssignment(t, app, fx.signals, "Homework 1", time.Now().Add(24*time.Hour))
	subsPath := "/v1/assignments/" + a.ID + "/submissions"
	notes := marchallObj(t, assignment.NewSubmission{Notes: "see attached"})

	runTests(t, app, []httpTest{
		{
			name: "teacher cannot submit", method: http.MethodPost, path: subsPath, body: notes, token: getToken(t, app.conf, fx.teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{
			name: "other cohort cannot submit", method: http.MethodPost, path: subsPath, body: notes, token: getToken(t, app.conf, fx.master),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyCohortMismatch)),
		},
		{name: "anonymous cannot submit", method: http.MethodPost, path: subsPath, body: notes, wantCode: http.StatusUnauthorized},
	})

	var first assignment.Submission
	t.Run("submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, subsPath, getToken(t, app.conf, fx.bachelor), notes)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshal(t, rec, &first)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, a.ID, first.AssignmentID)
		assert.Equal(t, fx.bachelor.ID, first.StudentID)
		assert.Equal(t, "see attached", first.Notes)
		assert.Nil(t, first.Mark)
	})

	t.Run("resubmit with a file replaces the submission", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, subsPath, getToken(t, app.conf, fx.bachelor),
			map[string]string{"notes": "final version"}, "file", "report.pdf", pdfContent)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got assignment.Submission
		unmarshal(t, rec, &got)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "final version", got.Notes)
		require.NotNil(t, got.File)
		assert.Equal(t, "report.pdf", got.File.FileName)
	})

	require.Equal(t, http.StatusCreated, submit(t, app, a, classmate, "mine").StatusCode)
	ownPath := subsPath + "/" + fx.bachelor.ID

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, subsPath, getToken(t, app.conf, fx.teacher))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []assignment.Submission
		unmarshal(t, rec, &got)
		require.Len(t, got, 2)
		assert.Equal(t, fx.bachelor.ID, got[0].StudentID)
		assert.Equal(t, classmate.ID, got[1].StudentID)
	})

	runTests(t, app, []httpTest{
		{
			name: "student cannot list", path: subsPath, token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{
			name: "other teacher cannot list", path: subsPath, token: getToken(t, app.conf, fx.otherTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
		{name: "own submission", path: ownPath, token: getToken(t, app.conf, fx.bachelor), wantCode: http.StatusOK},
		{name: "teacher reads it", path: ownPath, token: getToken(t, app.conf, fx.teacher), wantCode: http.StatusOK},
		{
			name: "classmate cannot read it", path: ownPath, token: getToken(t, app.conf, classmate),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
		{
			name: "no submission", path: subsPath + "/" + fx.master.ID, token: getToken(t, app.conf, fx.teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "submission not found"}),
		},
		{
			name: "classmate cannot fetch the file", path: ownPath + "/file", token: getToken(t, app.conf, classmate),
			wantCode: http.StatusForbidden,
		},
		{
			name: "submission without file", path: subsPath + "/" + classmate.ID + "/file", token: getToken(t, app.conf, fx.teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "file not found"}),
		},
	})

	t.Run("teacher downloads the file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, ownPath+"/file", getToken(t, app.conf, fx.teacher))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, pdfContent, rec.Body.Bytes())
		assert.Equal(t, "attachment; filename=report.pdf", rec.Header().Get("Content-Disposition"))
	})
}

func Test_assignmentApi_grade(t *testing.T) {
	app := setup(t)
	fx := newCourseFixture(t, app)
	a := createAssignment(t, app, fx.signals, "Homework 1", time.Now().Add(24*time.Hour))
	require.Equal(t, http.StatusCreated, submit(t, app, a, fx.bachelor, "done").StatusCode)
	path := "/v1/assignments/" + a.ID + "/submissions/" + fx.bachelor.ID + "/grade"

	runTests(t, app, []httpTest{
		{
			name: "student", method: http.MethodPut, path: path, body: []byte(`{"mark": 20}`), token: getToken(t, app.conf, fx.bachelor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyRoleRequired)),
		},
		{
			name: "other teacher", method: http.MethodPut, path: path, body: []byte(`{"mark": 20}`), token: getToken(t, app.conf, fx.otherTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, denied(authz.ReasonDenyOwnerMismatch)),
		},
		{
			name: "missing mark", method: http.MethodPut, path: path, body: []byte(`{}`), token: getToken(t, app.conf, fx.teacher),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"mark": "this field is required"}),
		},
		{name: "negative mark", method: http.MethodPut, path: path, body: []byte(`{"mark": -1}`), token: getToken(t, app.conf, fx.teacher), wantCode: http.StatusBadRequest},
	})

	t.Run("owner", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, app.conf, fx.teacher), []byte(`{"mark": 15.5}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got assignment.Submission
		unmarshal(t, rec, &got)
		require.NotNil(t, got.Mark)
		assert.Equal(t, 15.5, *got.Mark)
		require.NotNil(t, got.MarkedAt)
	})

	t.Run("graded work cannot be resubmitted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/submissions", getToken(t, app.conf, fx.bachelor),
			marchallObj(t, assignment.NewSubmission{Notes: "late fix"}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "submission already graded"}),
		}, rec)

		s, err := app.assignments.GetStudentSubmission(context.Background(), a.ID, fx.bachelor.ID)
		require.NoError(t, err)
		assert.Equal(t, "done", s.Notes)
	})

	t.Run("regrading overwrites the mark", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, app.conf, fx.teacher), []byte(`{"mark": 17}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got assignment.Submission
		unmarshal(t, rec, &got)
		assert.Equal(t, 17.0, *got.Mark)
	})
}
