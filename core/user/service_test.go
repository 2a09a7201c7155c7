package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	testutil "github.com/trezcool/ratiba/tests"
)

const pwd = "Ratiba-2021!"

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "John", "john", "john@test.test", pwd, nil, true)

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr error
	}{
		{"username taken", user.NewUser{Name: "J", Username: "john", Email: "j@test.test", Password: pwd}, user.ErrUsernameExists},
		{"email taken", user.NewUser{Name: "J", Username: "jo", Email: "john@test.test", Password: pwd}, user.ErrEmailExists},
		{"ok", user.NewUser{Name: "Jane", Username: "jane", Email: "jane@test.test", Password: pwd, Roles: []string{user.RoleTeacher}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := env.Users.Create(ctx, tt.nu)
			if tt.wantErr != nil {
				assert.True(t, core.IsValidation(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, usr.IsActive)
			assert.True(t, usr.IsTeacher())
			assert.NoError(t, usr.CheckPassword(pwd))
		})
	}
}

func TestService_GetByUsernameOrEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	john := testutil.CreateUser(t, env.UserRepo, "John", "john", "john@test.test", pwd, nil, true)

	for _, uname := range []string{"john", " JOHN ", "John@Test.test"} {
		usr, err := env.Users.GetByUsernameOrEmail(context.Background(), uname)
		require.NoError(t, err, uname)
		assert.Equal(t, john.ID, usr.ID)
	}
	_, err := env.Users.GetByUsernameOrEmail(context.Background(), "nobody")
	assert.True(t, core.IsNotFound(err))
}

func TestService_LessonBuffer(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher", 1, 30)
	student := env.Student(t, "student")

	buf, err := env.Users.LessonBuffer(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, buf)

	// the cache serves stale values until the duration changes through the service
	teacher.LessonHour = 2
	_, err = env.UserRepo.UpdateUser(ctx, teacher)
	require.NoError(t, err)
	buf, err = env.Users.LessonBuffer(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, buf)

	_, err = env.Users.SetLessonDuration(ctx, teacher, user.LessonDuration{Hour: 0, Minute: 45})
	require.NoError(t, err)
	buf, err = env.Users.LessonBuffer(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, buf)

	_, err = env.Users.SetLessonDuration(ctx, student, user.LessonDuration{Hour: 1})
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))

	_, err = env.Users.LessonBuffer(ctx, 999)
	assert.True(t, core.IsNotFound(err))
}

func TestService_parents(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := env.Student(t, "alice")
	bob := env.Student(t, "bob")
	mum := env.Parent(t, "mum", alice, bob)
	dad := env.Parent(t, "dad", alice)

	ids, err := env.Users.ParentIDs(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{mum.ID, dad.ID}, ids)

	ids, err = env.Users.ParentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	children, err := env.Users.ChildIDs(ctx, mum.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{alice.ID, bob.ID}, children)

	tests := []struct {
		name    string
		parent  int
		student int
		want    bool
	}{
		{"mum of alice", mum.ID, alice.ID, true},
		{"dad of alice", dad.ID, alice.ID, true},
		{"dad of bob", dad.ID, bob.ID, false},
		{"alice of bob", alice.ID, bob.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Users.IsParentOf(ctx, tt.parent, tt.student)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_passwordReset(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	john := testutil.CreateUser(t, env.UserRepo, "John", "john", "john@test.test", pwd, nil, true)
	testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "gone@test.test", pwd, nil, false)

	assert.True(t, core.IsNotFound(env.Users.RequestPasswordReset(ctx, "gone@test.test")))
	assert.True(t, core.IsNotFound(env.Users.RequestPasswordReset(ctx, "x@test.test")))
	assert.Empty(t, emailsvc.SentMessages())

	require.NoError(t, env.Users.RequestPasswordReset(ctx, "John@test.test"))
	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	data := sent[0].TemplateData.(map[string]interface{})
	uid, token := data["UID"].(string), data["Token"].(string)

	newPwd := "Another-2021!"
	tests := []struct {
		name    string
		data    user.ResetUserPassword
		wantErr bool
	}{
		{"bad uid", user.ResetUserPassword{UID: "???", Token: token, Password: newPwd}, true},
		{"bad token", user.ResetUserPassword{UID: uid, Token: "1-abc", Password: newPwd}, true},
		{"ok", user.ResetUserPassword{UID: uid, Token: token, Password: newPwd}, false},
		{"token used", user.ResetUserPassword{UID: uid, Token: token, Password: newPwd}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.Users.ResetPassword(ctx, tt.data)
			if tt.wantErr {
				_, ok := errors.Cause(err).(*core.ValidationError)
				assert.True(t, ok, "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}

	usr, err := env.Users.GetByID(ctx, john.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(newPwd))
}
