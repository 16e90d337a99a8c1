package http

import (
	"net/http"

	"kas/internal/auth"
	"kas/internal/core"
)

const (
	transactionNotFound = "Transaction not found"
	studentNotFound     = "Student not found"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	tx, err := in.toTransaction()
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	created, err := s.ledger.CreateTransaction(r.Context(), auth.OwnerFromContext(r.Context()), tx)
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	s.appMetrics.wrote()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions/"+created.ID).
		JSON(created).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().JSON(txs).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.GetTransaction(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	NewJSONResponse().JSON(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	tx, err := in.toTransaction()
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	updated, err := s.ledger.UpdateTransaction(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), tx)
	if err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	s.appMetrics.wrote()
	NewJSONResponse().JSON(updated).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err, transactionNotFound)
		return
	}
	s.appMetrics.wrote()
	ErrorResponse(http.StatusOK, "Transaction deleted").Write(w)
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var in studentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	created, err := s.ledger.CreateStudent(r.Context(), auth.OwnerFromContext(r.Context()), in.toStudent())
	if err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	s.appMetrics.wrote()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/students/"+created.ID).
		JSON(created).
		Write(w)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.ledger.ListStudents(r.Context(), auth.OwnerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	if students == nil {
		students = []core.Student{}
	}
	NewJSONResponse().JSON(students).Write(w)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.GetStudent(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	NewJSONResponse().JSON(st).Write(w)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var in studentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	updated, err := s.ledger.UpdateStudent(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), in.toStudent())
	if err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	s.appMetrics.wrote()
	NewJSONResponse().JSON(updated).Write(w)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteStudent(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err, studentNotFound)
		return
	}
	s.appMetrics.wrote()
	ErrorResponse(http.StatusOK, "Student deleted").Write(w)
}
