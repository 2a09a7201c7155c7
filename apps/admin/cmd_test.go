package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
	testutil "github.com/trezcool/ratiba/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	return &commandLine{
		db:            new(sql.DB),
		logger:        env.Logger,
		usrRepo:       env.UserRepo,
		notifications: env.Notifications,
	}, env
}

// mockPassword makes the password prompt return pwd until the test ends.
func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = nil })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	runMigrationsFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { runMigrationsFunc = nil })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down-to", "status"}, ran)

	cli.db = nil
	assert.EqualError(t, cli.run([]string{"admin", "migrate", "up"}), "migrations need a database")
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken", "taken@test.cd", "Ratiba-2021!", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "awe"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "awe", "-email", "awe@test.cd"}, wantErr: errHelp, extra: ""},
		{
			name: "email of another user", args: []string{"adduser", "-username", "new", "-email", "TAKEN@test.cd"},
			extra: "Secret-2021", // updates the user found by email
		},
		{
			name:  "create admin", args: []string{"adduser", "-username", " Awe ", "-email", "awe@test.cd", "-name", "Awe Some", "-admin"},
			extra: "Secret-2021",
		},
		{
			name:  "update adds teacher role", args: []string{"adduser", "-username", "awe", "-email", "awe@test.cd", "-teacher"},
			extra: "Other-2021",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(t, pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	awe, err := env.UserRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "awe"})
	require.NoError(t, err)
	assert.Equal(t, "Awe Some", awe.Name)
	assert.True(t, awe.IsActive)
	assert.ElementsMatch(t, []string{user.RoleAdmin, user.RoleAdminOwner, user.RoleTeacher}, awe.Roles)
	assert.NoError(t, awe.CheckPassword("Other-2021"))

	taken, err := env.UserRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "taken"})
	require.NoError(t, err)
	assert.NoError(t, taken.CheckPassword("Secret-2021"))
	assert.Empty(t, taken.Roles)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(t, pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err == nil {
				refreshed, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_sendAttendance(t *testing.T) {
	cli, env := setup(t)
	ctx := context.Background()
	teacher := env.Teacher(t, "teacher", 1, 0)
	grp := env.Group(t, teacher, "Biology", lesson.NewLessonSlot{WeekDay: 7, Time: "09:00"})
	jane := env.Student(t, "jane")
	parent := env.Parent(t, "parent", jane)
	env.Enroll(t, teacher, grp, jane)

	sunday := core.Today().AddDays(-1)
	_, err := env.AttendanceRepo.SaveRecord(ctx, attendance.Record{
		StudentID: jane.ID,
		LessonID:  grp.Lessons[0].ID,
		Date:      sunday,
		Type:      attendance.TypeInTime,
	})
	require.NoError(t, err)

	reports := func() int {
		n := 0
		for _, item := range env.Inbox(t, parent) {
			if item.Kind == notification.KindAttendance {
				n++
			}
		}
		return n
	}

	tests := []cliTest{
		{name: "bad date", args: []string{"send-attendance", "-date", "2021-02-28"}, wantErrStr: "invalid date"},
		{name: "another day", args: []string{"send-attendance", "-date", "27-02-2021"}, extra: 0},
		{name: "yesterday by default", args: []string{"send-attendance"}, extra: 1},
		{name: "re-run sends nothing", args: []string{"send-attendance", "-date", "28-02-2021"}, extra: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
			if want, ok := tt.extra.(int); ok {
				assert.Equal(t, want, reports())
			}
		})
	}
}
