package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// wire formats
const (
	DateLayout     = "02-01-2006"       // d-m-Y
	DateTimeLayout = "02-01-2006 15:04" // d-m-Y H:i
	ISODateLayout  = "2006-01-02"       // Y-m-d
)

var (
	NowFunc = time.Now // mockable

	location   = time.UTC
	locationMu sync.RWMutex
)

// SetLocation sets the time zone used to evaluate "today".
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	location = loc
	locationMu.Unlock()
}

func Location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return location
}

// Today returns the current calendar date in the application time zone.
func Today() Date {
	return NewDate(NowFunc().In(Location()))
}

// TruncateDate drops the clock part of t and returns the date at UTC midnight.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISOWeekday returns the day of week of t with Monday = 1 ... Sunday = 7.
func ISOWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// ParseDate parses a d-m-Y date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

// ParseOptionalDate parses a d-m-Y date, defaulting to today when s is empty.
func ParseOptionalDate(s string) (Date, error) {
	if strings.TrimSpace(s) == "" {
		return Today(), nil
	}
	return ParseDate(s)
}

// ParseDateTime parses a "d-m-Y H:i" value into its date and its clock.
func ParseDateTime(s string) (Date, Clock, error) {
	t, err := time.Parse(DateTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, 0, err
	}
	return NewDate(t), NewClock(t.Hour(), t.Minute()), nil
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run;
// falls back to the working directory when no root is found.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
