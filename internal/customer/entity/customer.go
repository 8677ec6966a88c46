package entity

import (
	"strings"
	"time"
)

type Status string

const (
	StatusAtivo    Status = "ATIVO"
	StatusInativo  Status = "INATIVO"
	StatusSuspenso Status = "SUSPENSO"
)

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusAtivo, StatusInativo, StatusSuspenso:
		return st, true
	}
	return "", false
}

// Customer is a bank customer record. It is not a login principal.
type Customer struct {
	ID        string    `json:"id" db:"id"`
	Nome      string    `json:"nome" db:"nome"`
	Cpf       string    `json:"cpf" db:"cpf"`
	Email     string    `json:"email" db:"email"`
	Telefone  string    `json:"telefone" db:"telefone"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (c *Customer) Deactivate() { c.Status = StatusInativo }

// Filter selects a page of customers. Nome and Email match as
// case-insensitive substrings; an empty Status matches every status.
type Filter struct {
	Nome    string
	Email   string
	Status  Status
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

type Page struct {
	Customers     []*Customer `json:"customers"`
	CurrentPage   int         `json:"currentPage"`
	TotalElements int64       `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
	PageSize      int         `json:"pageSize"`
}

type Stats struct {
	TotalCustomers    int64     `json:"totalCustomers"`
	ActiveCustomers   int64     `json:"activeCustomers"`
	InactiveCustomers int64     `json:"inactiveCustomers"`
	RecentCustomers   int64     `json:"recentCustomers"`
	Timestamp         time.Time `json:"timestamp"`
}

// Deletion describes the outcome of DELETE /customers/{id}.
type Deletion struct {
	CustomerID           string `json:"customerId"`
	CustomerName         string `json:"customerName"`
	Action               string `json:"action"`
	Message              string `json:"message"`
	ShouldRemoveFromList bool   `json:"shouldRemoveFromList"`
	Timestamp            int64  `json:"timestamp"`
}
