package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/propdesk/apps/api/echo"
	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
	"github.com/trezcool/propdesk/storage/database/inmem"
	"github.com/trezcool/propdesk/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	app      Server
	conf     *core.Config
	db       *inmemdb.DB
	usrRepo  user.Repository
	propRepo prop.Repository
	sessions session.Service
	objects  *testutil.ObjectStore
}

type setupOptions struct {
	timeout     time.Duration
	wrapClasses func(class.Repository) class.Repository
	objects     core.ObjectStore
}

type setupOption func(*setupOptions)

func withRequestTimeout(d time.Duration) setupOption {
	return func(o *setupOptions) { o.timeout = d }
}

// withClassRepo lets a test put a stub in front of the class repository.
func withClassRepo(wrap func(class.Repository) class.Repository) setupOption {
	return func(o *setupOptions) { o.wrapClasses = wrap }
}

func withObjectStore(store core.ObjectStore) setupOption {
	return func(o *setupOptions) { o.objects = store }
}

func setup(t *testing.T, opts ...setupOption) *env {
	t.Helper()
	o := setupOptions{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	conf := &core.Config{
		AppName:   "PropDesk",
		SecretKey: "test-secret",
		TestMode:  true,
		Server: core.ServerConfig{
			RequestTimeout: o.timeout,
			SessionTTL:     time.Hour,
		},
	}

	// set up DB & repos
	db := inmemdb.Open()
	if err := inmemdb.SeedSuperAdmin(context.Background(), db); err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	e := &env{
		conf:     conf,
		db:       db,
		usrRepo:  inmemdb.NewUserRepository(db),
		propRepo: inmemdb.NewPropRepository(db),
		objects:  testutil.NewObjectStore(),
	}

	// set up services
	validate, translator := testutil.NewValidatorWithTranslator()
	e.sessions = session.NewService(inmemdb.NewSessionStore(db), conf.Server.SessionTTL)
	classRepo := inmemdb.NewClassRepository(db)
	if o.wrapClasses != nil {
		classRepo = o.wrapClasses(classRepo)
	}
	var objects core.ObjectStore = e.objects
	if o.objects != nil {
		objects = o.objects
	}
	classSvc := class.NewService(classRepo, e.usrRepo, e.propRepo, objects, validate, nil)

	// set up server
	e.app = NewServer(ServerDeps{
		Conf:       conf,
		UserSvc:    user.NewService(e.usrRepo, e.sessions, validate),
		SessionSvc: e.sessions,
		ClassSvc:   classSvc,
		PropSvc:    prop.NewService(e.propRepo, validate),
		Validate:   validate,
		Translator: translator,
	})
	return e
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	sess, err := e.sessions.Issue(context.Background(), session.Identity{
		UserID:      usr.ID,
		Username:    usr.Username,
		DisplayName: usr.DisplayName,
		Role:        usr.Role,
	})
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	token, err := GenerateToken(e.conf, sess)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves one request and returns the recorder.
func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

// newMultipartRequest sends files under "images" and, when note is not nil, a "note" field.
func newMultipartRequest(t *testing.T, path, token string, files map[string][]byte, note *string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile("images", name)
		if err != nil {
			t.Fatalf("newMultipartRequest() failed: %v", err)
		}
		if _, err = part.Write(data); err != nil {
			t.Fatalf("newMultipartRequest() failed: %v", err)
		}
	}
	if note != nil {
		if err := w.WriteField("note", *note); err != nil {
			t.Fatalf("newMultipartRequest() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("newMultipartRequest() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
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
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, e.do(method, tt.path, tt.token, tt.body))
		})
	}
}
