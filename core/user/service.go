package user

import (
	"context"
	"net/mail"
	"strconv"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrNotTeacher     = errors.New("user is not a teacher")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs []int, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsersByID returns the found users, in no particular order.
		QueryUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		AddParent(ctx context.Context, studentID, parentID int, exec ...core.DBExecutor) error
		// QueryParentIDs returns the distinct parents of all given students.
		QueryParentIDs(ctx context.Context, studentIDs []int, exec ...core.DBExecutor) ([]int, error)
		QueryChildIDs(ctx context.Context, parentID int, exec ...core.DBExecutor) ([]int, error)
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		QueryByID(ctx context.Context, ids ...int) (map[int]User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetLessonDuration(ctx context.Context, actor User, ld LessonDuration) (User, error)
		LessonBuffer(ctx context.Context, teacherID int) (int, error)
		LinkParent(ctx context.Context, studentID, parentID int) error
		ParentIDs(ctx context.Context, studentIDs ...int) ([]int, error)
		ChildIDs(ctx context.Context, parentID int) ([]int, error)
		IsParentOf(ctx context.Context, parentID, studentID int) (bool, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		buffers *cache.Cache
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return newService(repo, mailSvc, conf)
}

func newService(repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		buffers: cache.New(conf.BufferCacheTTL, 2*conf.BufferCacheTTL),
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func (svc *service) checkUniqueness(ctx context.Context, uname, email string, excludedIDs ...int) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excludedIDs); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}
	now := core.NowFunc().UTC()
	usr := User{
		Name:         nu.Name,
		Username:     nu.Username,
		Email:        nu.Email,
		IsActive:     true,
		Roles:        nu.Roles,
		LessonHour:   nu.LessonHour,
		LessonMinute: nu.LessonMinute,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) QueryByID(ctx context.Context, ids ...int) (map[int]User, error) {
	users, err := svc.repo.QueryUsersByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	byID := make(map[int]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin.SetValid(core.NowFunc().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLessonDuration(ctx context.Context, actor User, ld LessonDuration) (User, error) {
	if !actor.IsTeacher() {
		return User{}, errors.WithMessage(core.ErrPermissionDenied, ErrNotTeacher.Error())
	}
	usr, err := svc.GetByID(ctx, actor.ID)
	if err != nil {
		return User{}, err
	}
	usr.LessonHour = ld.Hour
	usr.LessonMinute = ld.Minute
	usr.UpdatedAt = core.NowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating lesson duration")
	}
	svc.buffers.Delete(bufferKey(usr.ID))
	return usr, nil
}

func bufferKey(teacherID int) string {
	return "buffer:" + strconv.Itoa(teacherID)
}

// LessonBuffer returns the teacher's lesson duration in minutes; values are cached.
func (svc *service) LessonBuffer(ctx context.Context, teacherID int) (int, error) {
	if buf, ok := svc.buffers.Get(bufferKey(teacherID)); ok {
		return buf.(int), nil
	}
	usr, err := svc.GetByID(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	buf := usr.LessonBuffer()
	svc.buffers.SetDefault(bufferKey(teacherID), buf)
	return buf, nil
}

func (svc *service) LinkParent(ctx context.Context, studentID, parentID int) error {
	return svc.repo.AddParent(ctx, studentID, parentID)
}

func (svc *service) ParentIDs(ctx context.Context, studentIDs ...int) ([]int, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	return svc.repo.QueryParentIDs(ctx, studentIDs)
}

func (svc *service) ChildIDs(ctx context.Context, parentID int) ([]int, error) {
	return svc.repo.QueryChildIDs(ctx, parentID)
}

func (svc *service) IsParentOf(ctx context.Context, parentID, studentID int) (bool, error) {
	parents, err := svc.repo.QueryParentIDs(ctx, []int{studentID})
	if err != nil {
		return false, errors.Wrap(err, "querying parents")
	}
	for _, id := range parents {
		if id == parentID {
			return true, nil
		}
	}
	return false, nil
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if usr.Email == "" || !usr.IsActive {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.makeToken(usr),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
