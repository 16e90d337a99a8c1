package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const dateLayout = "2006-01-02"

type (
	// Kind tells whether a transaction adds to or subtracts from a month's balance.
	Kind string

	// Date is a calendar date stored at UTC midnight.
	Date struct {
		time.Time
	}

	// Student is a named payer tracked by an owner.
	Student struct {
		ID          string    `json:"id"`
		OwnerID     string    `json:"ownerId" validate:"required"`
		Name        string    `json:"name" validate:"required,max=120"`
		PhoneNumber string    `json:"phoneNumber" validate:"max=32"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// Transaction is a single money movement owned by a user.
	// StudentID is a back-reference to the payer; rows written before it
	// existed carry only StudentName.
	Transaction struct {
		ID          string          `json:"id"`
		OwnerID     string          `json:"ownerId" validate:"required"`
		StudentID   string          `json:"studentId,omitempty"`
		StudentName string          `json:"studentName" validate:"max=120"`
		Amount      decimal.Decimal `json:"amount"`
		OccurredOn  Date            `json:"date"`
		Note        string          `json:"note" validate:"max=500"`
		Settled     bool            `json:"settled"`
		Kind        Kind            `json:"kind" validate:"required,oneof=income expense"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so callers see what they actually sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// LastDayOfMonth returns the last calendar day of the given month.
func LastDayOfMonth(year, month int) Date {
	return Date{Time: time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp. A timestamp is taken
// as the calendar date at its own offset.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, ErrValidation)
	}
	return DateOf(t), nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", ErrValidation)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	return k == Income || k == Expense
}

// Signed returns the amount with the sign implied by its kind.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (s Student) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if err := validate.Struct(s); err != nil {
		return newValidationError(err)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := validate.Struct(t); err != nil {
		return newValidationError(err)
	}
	if t.OccurredOn.IsZero() {
		return &ValidationError{Fields: map[string]string{"date": "required"}}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Fields: map[string]string{"amount": "gte=0"}}
	}
	return nil
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
