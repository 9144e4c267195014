package model

// CaseStatus tracks where a client matter stands.
type CaseStatus string

const (
	CaseStatusActive  CaseStatus = "active"
	CaseStatusPending CaseStatus = "pending"
	CaseStatusClosed  CaseStatus = "closed"
	CaseStatusHold    CaseStatus = "hold"
)

// IsValid reports whether s is a recognized case status.
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusActive, CaseStatusPending, CaseStatusClosed, CaseStatusHold:
		return true
	default:
		return false
	}
}

// Case is a client matter record that tasks may reference informationally.
type Case struct {
	ID          string     `json:"id"`
	ClientName  string     `json:"clientName" validate:"required"`
	CaseNumber  string     `json:"caseNumber" validate:"required"`
	Subject     string     `json:"subject,omitempty"`
	LegalNumber string     `json:"legalNumber,omitempty"`
	Court       string     `json:"court,omitempty"`
	Judge       string     `json:"judge,omitempty"`
	NextHearing string     `json:"nextHearing,omitempty"`
	Status      CaseStatus `json:"status"`
	ClientPhone string     `json:"clientPhone,omitempty"`
	ClientEmail string     `json:"clientEmail,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}
