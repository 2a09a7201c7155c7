package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
	testutil "github.com/trezcool/ratiba/tests"
)

var errMissingToken = errResp("missing or malformed jwt")

// apiEnv is a Server wired on an in-memory testutil.Env.
type apiEnv struct {
	*testutil.Env
	app *echoapi.Server
}

func setup(t *testing.T) apiEnv {
	t.Helper()
	env := testutil.NewEnv(t)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            env.Conf,
		Logger:          env.Logger,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
		UserSvc:         env.Users,
		LessonSvc:       env.Lessons,
		EnrollmentSvc:   env.Enrollments,
		AttendanceSvc:   env.Attendance,
		NotificationSvc: env.Notifications,
	})
	t.Cleanup(func() { _ = app.Close() })
	return apiEnv{Env: env, app: app}
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

func (env apiEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// do sends one request and returns its recorder.
func (env apiEnv) do(t *testing.T, method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, body...)
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env apiEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.Conf, echoapi.GetUserClaims(env.Conf, usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
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

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

type response struct {
	Status  bool              `json:"status"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Message string            `json:"message,omitempty"`
}

func okResp(data interface{}) map[string]interface{} {
	return map[string]interface{}{"status": true, "data": data}
}

func okMsg(msg string) map[string]interface{} {
	return map[string]interface{}{"status": true, "message": msg}
}

func errResp(msg string) map[string]interface{} {
	return map[string]interface{}{"status": false, "message": msg}
}

func fieldErrs(msg string, errs map[string]string) map[string]interface{} {
	resp := map[string]interface{}{"status": false, "errors": errs}
	if msg != "" {
		resp["message"] = msg
	}
	return resp
}

// decode unmarshals the response envelope, and its data into dest when given.
func decode(t *testing.T, rec *httptest.ResponseRecorder, dest ...interface{}) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	if len(dest) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, dest[0]), rec.Body.String())
	}
	return resp
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
	return assert.Equal(t, j2, j1), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
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
