// Package inmemdb keeps every table in memory. It backs the tests and the API's -inmem mode.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

type (
	parentLink struct {
		studentID int
		parentID  int
	}

	tables struct {
		seq           map[string]int
		users         map[int]user.User
		parents       []parentLink
		subjects      map[int]lesson.Subject
		groups        map[int]lesson.Group
		lessons       map[int]lesson.Lesson
		operations    map[int]lesson.Operation
		enrollments   map[int]enrollment.Enrollment
		records       map[int]attendance.Record
		notifications map[int]notification.Notification
		dispatches    map[string]string
	}

	DB struct {
		sync.RWMutex
		tx sync.Mutex // one transaction at a time
		tables
	}
)

func newTables() tables {
	return tables{
		seq:           make(map[string]int),
		users:         make(map[int]user.User),
		subjects:      make(map[int]lesson.Subject),
		groups:        make(map[int]lesson.Group),
		lessons:       make(map[int]lesson.Lesson),
		operations:    make(map[int]lesson.Operation),
		enrollments:   make(map[int]enrollment.Enrollment),
		records:       make(map[int]attendance.Record),
		notifications: make(map[int]notification.Notification),
		dispatches:    make(map[string]string),
	}
}

func Open() *DB {
	return &DB{tables: newTables()}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.tables = newTables()
}

// nextID must be called with the write lock held.
func (db *DB) nextID(table string) int {
	db.seq[table]++
	return db.seq[table]
}

// snapshot copies every table. Rows are values; their slices are never mutated in place.
func (t tables) snapshot() tables {
	s := newTables()
	for k, v := range t.seq {
		s.seq[k] = v
	}
	for k, v := range t.users {
		s.users[k] = v
	}
	s.parents = append([]parentLink(nil), t.parents...)
	for k, v := range t.subjects {
		s.subjects[k] = v
	}
	for k, v := range t.groups {
		s.groups[k] = v
	}
	for k, v := range t.lessons {
		s.lessons[k] = v
	}
	for k, v := range t.operations {
		s.operations[k] = v
	}
	for k, v := range t.enrollments {
		s.enrollments[k] = v
	}
	for k, v := range t.records {
		s.records[k] = v
	}
	for k, v := range t.notifications {
		s.notifications[k] = v
	}
	for k, v := range t.dispatches {
		s.dispatches[k] = v
	}
	return s
}

type txRunner struct {
	db *DB
}

var _ core.TxRunner = (*txRunner)(nil)

// NewTxRunner returns a TxRunner that restores the tables as they were when fn fails.
func NewTxRunner(db *DB) core.TxRunner {
	return &txRunner{db: db}
}

func (r *txRunner) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	exec := core.NewTx(nil)
	if err := r.run(func() error { return fn(exec) }); err != nil {
		return err
	}
	exec.Committed()
	return nil
}

// run serializes transactions and restores the snapshot taken before fn when it fails.
func (r *txRunner) run(fn func() error) (err error) {
	r.db.tx.Lock()
	defer r.db.tx.Unlock()

	r.db.RLock()
	saved := r.db.tables.snapshot()
	r.db.RUnlock()

	rollback := func() {
		r.db.Lock()
		r.db.tables = saved
		r.db.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(); err != nil {
		rollback()
	}
	return err
}
