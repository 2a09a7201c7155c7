package testutil

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	exportsvc "github.com/trezcool/ratiba/services/export"
	logsvc "github.com/trezcool/ratiba/services/logger"
	metricsvc "github.com/trezcool/ratiba/services/metrics"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
)

// Monday 1 March 2021, 08:00 UTC.
var Now = time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)

// Env is a complete application wired on the in-memory database.
type Env struct {
	Conf    *core.Config
	DB      *inmemdb.DB
	Metrics *metricsvc.Prometheus
	Logger  core.Logger

	UserRepo         user.Repository
	LessonRepo       lesson.Repository
	EnrollmentRepo   enrollment.Repository
	AttendanceRepo   attendance.Repository
	NotificationRepo notification.Repository

	Users         user.Service
	Notifications notification.Service
	Lessons       lesson.Service
	Enrollments   enrollment.Service
	Attendance    attendance.Service
}

// FreezeTime makes core.NowFunc return tm until the test ends.
func FreezeTime(t *testing.T, tm time.Time) {
	t.Helper()
	core.NowFunc = func() time.Time { return tm }
	t.Cleanup(func() { core.NowFunc = time.Now })
}

// NewEnv builds an Env with the clock frozen at Now.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	FreezeTime(t, Now)
	emailsvc.ClearSentMessages()

	conf := core.NewTestConfig()
	db := inmemdb.Open()
	tx := inmemdb.NewTxRunner(db)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, logsvc.APIPrefix, 0), conf)
	metrics := metricsvc.NewPrometheus()

	env := &Env{
		Conf:             conf,
		DB:               db,
		Metrics:          metrics,
		Logger:           logger,
		UserRepo:         inmemdb.NewUserRepository(db),
		LessonRepo:       inmemdb.NewLessonRepository(db),
		AttendanceRepo:   inmemdb.NewAttendanceRepository(db),
		NotificationRepo: inmemdb.NewNotificationRepository(db),
	}
	enrollmentRepo := inmemdb.NewEnrollmentRepository(db)
	env.EnrollmentRepo = enrollmentRepo

	env.Users = user.NewService(env.UserRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
	env.Notifications = notification.NewService(
		env.NotificationRepo,
		env.Users,
		emailsvc.NewConsoleServiceMock(conf, logger),
		tx,
		metrics,
		logger,
	)
	env.Lessons = lesson.NewService(env.LessonRepo, enrollmentRepo, env.Users, env.Notifications, tx, metrics)
	env.Enrollments = enrollment.NewService(enrollmentRepo, env.Lessons, env.Users, env.Notifications, tx)
	env.Attendance = attendance.NewService(
		env.AttendanceRepo,
		env.Lessons,
		env.Users,
		env.Notifications,
		exportsvc.NewExcelExporter(),
		tx,
	)
	return env
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.NowFunc().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// Teacher creates an active teacher whose lessons last hour:minute.
func (env *Env) Teacher(t *testing.T, uname string, hour, minute int) user.User {
	t.Helper()
	usr := user.User{
		Name:         "Teacher " + uname,
		Username:     uname,
		Email:        uname + "@test.test",
		Roles:        []string{user.RoleTeacher},
		IsActive:     true,
		LessonHour:   hour,
		LessonMinute: minute,
		CreatedAt:    core.NowFunc().UTC(),
		UpdatedAt:    core.NowFunc().UTC(),
	}
	usr, err := env.UserRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("Teacher() failed: %v", err)
	}
	return usr
}

func (env *Env) Student(t *testing.T, uname string) user.User {
	t.Helper()
	return CreateUser(t, env.UserRepo, "Student "+uname, uname, uname+"@test.test", "", []string{user.RoleStudent}, true)
}

// Parent creates a parent of the given children.
func (env *Env) Parent(t *testing.T, uname string, children ...user.User) user.User {
	t.Helper()
	parent := CreateUser(t, env.UserRepo, "Parent "+uname, uname, uname+"@test.test", "", []string{user.RoleParent}, true)
	for _, child := range children {
		if err := env.Users.LinkParent(context.Background(), child.ID, parent.ID); err != nil {
			t.Fatalf("Parent() failed: %v", err)
		}
	}
	return parent
}

func (env *Env) Admin(t *testing.T, uname string) user.User {
	t.Helper()
	return CreateUser(t, env.UserRepo, "Admin "+uname, uname, uname+"@test.test", "", []string{user.RoleAdmin}, true)
}

func (env *Env) Subject(t *testing.T, name string) lesson.Subject {
	t.Helper()
	sub, err := env.LessonRepo.CreateSubject(context.Background(), lesson.Subject{Name: name})
	if err != nil {
		t.Fatalf("Subject() failed: %v", err)
	}
	return sub
}

// Group creates a group of the teacher, with a fresh subject and one lesson per slot.
func (env *Env) Group(t *testing.T, teacher user.User, name string, slots ...lesson.NewLessonSlot) lesson.Group {
	t.Helper()
	sub := env.Subject(t, name+" subject")
	grp, err := env.Lessons.CreateGroup(context.Background(), teacher, lesson.NewGroup{
		Name:    name,
		Subject: sub.ID,
		Lessons: slots,
	})
	if err != nil {
		t.Fatalf("Group() failed: %v", err)
	}
	return grp
}

// Enroll adds the students to the group, accepted and attached to all its lessons.
func (env *Env) Enroll(t *testing.T, teacher user.User, grp lesson.Group, students ...user.User) {
	t.Helper()
	for _, s := range students {
		if _, err := env.Enrollments.AddToGroup(context.Background(), teacher, enrollment.AddToGroup{Student: s.ID, Group: grp.ID}); err != nil {
			t.Fatalf("Enroll() failed: %v", err)
		}
	}
}

// Inbox returns all the notifications of the user, newest first.
func (env *Env) Inbox(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	ns, _, err := env.NotificationRepo.QueryNotifications(context.Background(), usr.ID, core.NewPagination(1, 1000))
	if err != nil {
		t.Fatalf("Inbox() failed: %v", err)
	}
	return ns
}

// Scrape returns the metrics exposition of env.
func (env *Env) Scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	env.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func Date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("Date(%q) failed: %v", s, err)
	}
	return d
}
