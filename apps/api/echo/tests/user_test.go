package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	testutil "github.com/trezcool/ratiba/tests"
)

const pwd = "Ratiba-2021!"

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "John", "john", "john@test.test", pwd, []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "gone@test.test", pwd, []string{user.RoleStudent}, false)

	body := func(uname, password string) []byte {
		return marchallObj(t, map[string]string{"username": uname, "password": password})
	}
	required := "this field is required"
	authFailed := marchallObj(t, errResp("authentication failed"))

	tests := []httpTest{
		{
			name: "missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("", map[string]string{"username": required, "password": required})),
		},
		{name: "unknown user", body: body("nobody", pwd), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: body("john", "nope"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "deactivated", body: body("gone", pwd), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errResp("account deactivated")),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	env.run(t, tests)

	for _, uname := range []string{"JOHN", "john@test.test"} {
		t.Run("success "+uname, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/users/login", "", body(uname, pwd))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var data struct{ Token string }
			resp := decode(t, rec, &data)
			assert.True(t, resp.Status)
			assert.NotEmpty(t, data.Token)

			me := env.do(t, http.MethodGet, "/v1/users/me", data.Token)
			var usr user.User
			decode(t, me, &usr)
			assert.Equal(t, "john", usr.Username)
			assert.True(t, usr.LastLogin.Valid)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)

	env.run(t, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/v1/users/me", token: "not.a.token", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errResp("invalid or expired jwt")),
		},
		{name: "ok", path: "/v1/users/me", token: env.token(t, teacher), wantCode: http.StatusOK, wantData: marchallObj(t, okResp(teacher))},
	})
}

func Test_userApi_setLessonDuration(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	student := env.Student(t, "student")
	admin := env.Admin(t, "admin")
	path := "/v1/users/me/lesson-duration"

	env.run(t, []httpTest{
		{
			name: "students forbidden", method: http.MethodPut, path: path, token: env.token(t, student),
			body: []byte(`{"lesson_hour": 1}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "admins are not teachers", method: http.MethodPut, path: path, token: env.token(t, admin),
			body: []byte(`{"lesson_hour": 1}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "invalid minute", method: http.MethodPut, path: path, token: env.token(t, teacher),
			body: []byte(`{"lesson_hour": 1, "lesson_minute": 75}`), wantCode: http.StatusBadRequest,
		},
	})

	rec := env.do(t, http.MethodPut, path, env.token(t, teacher), []byte(`{"lesson_hour": 1, "lesson_minute": 30}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, 90, usr.LessonBuffer())

	buffer, err := env.Users.LessonBuffer(context.Background(), teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, buffer)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "John", "john", "john@test.test", pwd, nil, true)
	msg := "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."

	env.run(t, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset", body: []byte(`{"email": "john"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/password-reset", body: []byte(`{"email": "x@test.test"}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, okMsg(msg)),
		},
	})
	assert.Empty(t, emailsvc.SentMessages())

	rec := env.do(t, http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email": " John@Test.test "}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "john@test.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Password Reset")
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)
	student := env.Student(t, "student")

	env.run(t, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
	})

	rec := env.do(t, http.MethodPost, "/v1/users/token-refresh", env.token(t, student))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct{ Token string }
	decode(t, rec, &data)
	assert.NotEmpty(t, data.Token)
}

func Test_userApi_greet(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	student := env.Student(t, "student")
	parent := env.Parent(t, "parent", student)
	path := fmt.Sprintf("/v1/users/%d/greeting", student.ID)

	env.run(t, []httpTest{
		{
			name: "students forbidden", method: http.MethodPost, path: path, token: env.token(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/users/999/greeting", token: env.token(t, teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("user not found")),
		},
		{
			name: "ok", method: http.MethodPost, path: path, token: env.token(t, teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, okMsg("Greeting sent.")),
		},
	})

	assert.Len(t, env.Inbox(t, student), 1)
	assert.Empty(t, env.Inbox(t, parent))
}

func Test_userApi_register(t *testing.T) {
	env := setup(t)
	admin := env.Admin(t, "admin")
	teacher := env.Teacher(t, "teacher", 1, 0)
	body := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Email:           uname + "@test.test",
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	}

	env.run(t, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, teacher),
			body: body("kid", user.RoleStudent), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "owners only create admins", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, admin),
			body: body("boss", user.RoleAdmin), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("", map[string]string{"roles": "not enough rights to set these roles"})),
		},
	})

	rec := env.do(t, http.MethodPost, "/v1/users/register", env.token(t, admin), body("kid", user.RoleStudent))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.True(t, usr.IsStudent())

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/users/%d/parents", usr.ID), env.token(t, admin),
		marchallObj(t, map[string]int{"parent": env.Parent(t, "mum").ID}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
