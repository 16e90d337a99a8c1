package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"kas/internal/core"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON value from the body into v. Malformed
// input is reported as core.ErrValidation.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", core.ErrValidation, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", core.ErrValidation)
		case errors.Is(err, core.ErrValidation):
			return err
		default:
			return fmt.Errorf("%w: %v", core.ErrValidation, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: body must hold a single JSON value", core.ErrValidation)
	}
	return nil
}

// transactionInput is the writable part of a transaction.
type transactionInput struct {
	StudentID   string       `json:"studentId"`
	StudentName string       `json:"studentName"`
	Amount      *amountInput `json:"amount"`
	Date        core.Date    `json:"date"`
	Note        string       `json:"note"`
	Settled     bool         `json:"settled"`
	Kind        core.Kind    `json:"kind"`
}

func (in transactionInput) toTransaction() (core.Transaction, error) {
	tx := core.Transaction{
		StudentID:   sanitizeInput(in.StudentID),
		StudentName: sanitizeInput(in.StudentName),
		OccurredOn:  in.Date,
		Note:        sanitizeInput(in.Note),
		Settled:     in.Settled,
		Kind:        in.Kind,
	}
	if in.Amount == nil {
		return tx, &core.ValidationError{Fields: map[string]string{"amount": "required"}}
	}
	amount, err := core.ParseAmount(string(*in.Amount))
	if err != nil {
		return tx, err
	}
	tx.Amount = amount
	return tx, nil
}

// amountInput accepts an amount as a JSON number or string.
type amountInput string

func (a *amountInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return &core.ValidationError{Fields: map[string]string{"amount": "numeric"}}
	}
	*a = amountInput(n.String())
	return nil
}

// studentInput is the writable part of a student.
type studentInput struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

func (in studentInput) toStudent() core.Student {
	return core.Student{
		Name:        sanitizeInput(in.Name),
		PhoneNumber: sanitizeInput(in.PhoneNumber),
	}
}
