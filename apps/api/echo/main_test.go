package echoapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/filestore"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/tokenstore"
	"github.com/trezcool/darasa/storage/database/boltdb"
	"github.com/trezcool/darasa/testutil"
)

var (
	testLogger core.Logger

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	bachelor2       = authz.Cohort{AcademicLevel: "bachelor", AcademicYear: 2}
	master1Telecom  = authz.Cohort{AcademicLevel: "master", AcademicYear: 1, Major: "telecom"}
	validPassword   = "Pa$$w0rd!Xy"
	pdfContent      = []byte("%PDF-1.4 lecture")
	emptyList       = []byte("[]")
	jsonContentType = "application/json"
)

func TestMain(m *testing.M) {
	conf := testConfig("")
	testLogger = newTestLogger(conf)
	if err := core.ParseEmailTemplates(conf, testLogger); err != nil {
		log.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	user.LoadCommonPasswords(testLogger)

	os.Exit(m.Run())
}

func testConfig(uploadsDir string) *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Server.DisableReqLogs = true
	conf.Server.PublicCatalog = true
	conf.Uploads.Dir = uploadsDir
	return conf
}

func newTestLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), conf)
	logger.Enable(false)
	return logger
}

type testApp struct {
	*Server
	conf        *core.Config
	users       user.Repository
	courses     course.Repository
	anns        announcement.Repository
	assignments assignment.Repository
}

func setup(t *testing.T, confOpts ...func(*core.Config)) testApp {
	t.Helper()
	conf := testConfig(t.TempDir())
	for _, opt := range confOpts {
		opt(conf)
	}

	// set up DB & repos
	db := testutil.OpenDB(t)
	usrRepo := boltdb.NewUserRepository(db)
	courseRepo := boltdb.NewCourseRepository(db)
	annRepo := boltdb.NewAnnouncementRepository(db)
	asgRepo := boltdb.NewAssignmentRepository(db)

	store, err := filestore.NewDiskStorage(conf.Uploads.Dir)
	if err != nil {
		t.Fatalf("NewDiskStorage() failed: %v", err)
	}

	// set up services
	emailsvc.ResetSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testLogger)
	usrSvc := user.NewService(usrRepo, mailSvc, store)
	courseSvc := course.NewService(courseRepo, store)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	srv := NewServer(conf, testLogger, Deps{
		Validate:        validate,
		Translator:      translator,
		Engine:          authz.NewEngine(conf.Server.PublicCatalog),
		Tokens:          tokenstore.NewMemoryStore(),
		UserSvc:         usrSvc,
		CourseSvc:       courseSvc,
		AnnouncementSvc: announcement.NewService(annRepo, courseSvc, usrSvc, mailSvc, testLogger),
		AssignmentSvc:   assignment.NewService(asgRepo, store),
	})
	return testApp{
		Server:      srv,
		conf:        conf,
		users:       usrRepo,
		courses:     courseRepo,
		anns:        annRepo,
		assignments: asgRepo,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type denyErr struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func denied(reason string) denyErr {
	return denyErr{Error: "permission denied", Reason: reason}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a multipart form request; the file part is skipped when fileName is empty.
func newMultipartRequest(
	t *testing.T,
	method, path, token string,
	fields map[string]string,
	fileField, fileName string,
	content []byte,
) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = part.Write(content); err != nil {
			t.Fatalf("part.Write() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(conf, NewClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if len(objs) == 0 {
		return emptyList
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkCode(t, tt, rec)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func ids(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var objs []struct {
		ID string `json:"id"`
	}
	unmarshal(t, rec, &objs)
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ID)
	}
	return out
}

func assertIDs(t *testing.T, rec *httptest.ResponseRecorder, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	assert.Equal(t, want, ids(t, rec))
}
