package core

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Date is a calendar date (UTC midnight), serialized as Y-m-d.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{TruncateDate(t)}
}

func (d Date) String() string {
	return d.Format(ISODateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

func (d Date) Weekday() int {
	return ISOWeekday(d.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON accepts Y-m-d and d-m-Y.
func (d *Date) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	if t, err := time.Parse(ISODateLayout, s); err == nil {
		*d = NewDate(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(ISODateLayout) {
		s = s[:len(ISODateLayout)]
	}
	t, err := time.Parse(ISODateLayout, s)
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}
