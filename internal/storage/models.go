package storage

// Student is a row of the students table.
type Student struct {
	ID          string
	OwnerID     string
	Name        string
	PhoneNumber string
	CreatedAt   string
	UpdatedAt   string
}

// Transaction is a row of the transactions table. Amount is a decimal
// string and OccurredOn a YYYY-MM-DD date.
type Transaction struct {
	ID          string
	OwnerID     string
	StudentID   string
	StudentName string
	Amount      string
	OccurredOn  string
	Note        string
	Settled     bool
	Kind        string
	CreatedAt   string
	UpdatedAt   string
}
