package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs []int, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[int]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = repo.db.nextID("users")
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.UsernameOrEmail != "" {
		for _, usr := range repo.db.users {
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsersByID(_ context.Context, ids []int, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if usr, ok := repo.db.users[id]; ok && !seen[id] {
			seen[id] = true
			users = append(users, usr)
		}
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) AddParent(_ context.Context, studentID, parentID int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, link := range repo.db.parents {
		if link.studentID == studentID && link.parentID == parentID {
			return nil
		}
	}
	repo.db.parents = append(repo.db.parents, parentLink{studentID: studentID, parentID: parentID})
	return nil
}

func (repo *userRepository) QueryParentIDs(_ context.Context, studentIDs []int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make(map[int]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	seen := make(map[int]bool)
	var ids []int
	for _, link := range repo.db.parents {
		if students[link.studentID] && !seen[link.parentID] {
			seen[link.parentID] = true
			ids = append(ids, link.parentID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *userRepository) QueryChildIDs(_ context.Context, parentID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids []int
	for _, link := range repo.db.parents {
		if link.parentID == parentID {
			ids = append(ids, link.studentID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
