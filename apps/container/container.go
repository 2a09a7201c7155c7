// Package container wires the application services for the binaries under apps/.
package container

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

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
	"github.com/trezcool/ratiba/storage/database"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"
)

type (
	Options struct {
		// InMemory keeps everything in process memory; nothing survives a restart.
		InMemory bool
		// SkipMigrations leaves the schema untouched (the admin migrate command drives goose itself).
		SkipMigrations bool
	}

	// Container holds the wired dependencies of a binary.
	Container struct {
		Conf    *core.Config
		Logger  core.Logger
		Metrics *metricsvc.Prometheus
		Mail    core.EmailService

		// SQL is nil when running in memory.
		SQL *sql.DB

		UserRepo user.Repository

		Users         user.Service
		Notifications notification.Service
		Lessons       lesson.Service
		Enrollments   enrollment.Service
		Attendance    attendance.Service

		closers []func() error
	}

	repositories struct {
		tx           core.TxRunner
		users        user.Repository
		lessons      lesson.Repository
		roster       lesson.Roster
		enrollments  enrollment.Repository
		attendance   attendance.Repository
		notification notification.Repository
	}
)

// New builds a Container backed by postgres, or by the in-memory database when opts.InMemory is set.
func New(conf *core.Config, logger core.Logger, opts Options) (*Container, error) {
	c := &Container{
		Conf:    conf,
		Logger:  logger,
		Metrics: metricsvc.NewPrometheus(),
		Mail:    newEmailService(conf, logger),
	}

	var repos repositories
	if opts.InMemory {
		logger.Warn("using the in-memory database")
		repos = inMemoryRepositories()
	} else {
		dbLogger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.DBPrefix), conf)
		db, err := setUpDB(conf, !opts.SkipMigrations)
		if err != nil {
			dbLogger.Error(fmt.Sprintf("setting up database: %v", err), err)
			return nil, err
		}
		c.SQL = db.DB
		c.closers = append(c.closers, db.Close)
		repos = sqlRepositories(db)
	}

	c.UserRepo = repos.users
	c.Users = user.NewService(repos.users, c.Mail, conf)
	c.Notifications = notification.NewService(repos.notification, c.Users, c.Mail, repos.tx, c.Metrics, logger)
	c.Lessons = lesson.NewService(repos.lessons, repos.roster, c.Users, c.Notifications, repos.tx, c.Metrics)
	c.Enrollments = enrollment.NewService(repos.enrollments, c.Lessons, c.Users, c.Notifications, repos.tx)
	c.Attendance = attendance.NewService(
		repos.attendance,
		c.Lessons,
		c.Users,
		c.Notifications,
		exportsvc.NewExcelExporter(),
		repos.tx,
	)
	return c, nil
}

// Close releases the database connections.
func (c *Container) Close() error {
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			return errors.Wrap(err, "closing container")
		}
	}
	return nil
}

func setUpDB(conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	enrollments := sqlxrepos.NewEnrollmentRepository(db)
	return repositories{
		tx:           database.NewTxRunner(db),
		users:        sqlxrepos.NewUserRepository(db),
		lessons:      sqlxrepos.NewLessonRepository(db),
		roster:       enrollments,
		enrollments:  enrollments,
		attendance:   sqlxrepos.NewAttendanceRepository(db),
		notification: sqlxrepos.NewNotificationRepository(db),
	}
}

func inMemoryRepositories() repositories {
	db := inmemdb.Open()
	enrollments := inmemdb.NewEnrollmentRepository(db)
	return repositories{
		tx:           inmemdb.NewTxRunner(db),
		users:        inmemdb.NewUserRepository(db),
		lessons:      inmemdb.NewLessonRepository(db),
		roster:       enrollments,
		enrollments:  enrollments,
		attendance:   inmemdb.NewAttendanceRepository(db),
		notification: inmemdb.NewNotificationRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}
