package models

import "time"

type Status string

const (
	StatusPending       Status = "Pending"
	StatusUnderReview   Status = "Under Review"
	StatusInvestigating Status = "Investigating"
	StatusResolved      Status = "Resolved"
	StatusClosed        Status = "Closed"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusPending, StatusUnderReview, StatusInvestigating, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryVerbal        Category = "verbal"
	CategoryPhysical      Category = "physical"
	CategoryPsychological Category = "psychological"
	CategorySexual        Category = "sexual"
	CategoryCyberbullying Category = "cyberbullying"
	CategoryOther         Category = "other"
)

var Categories = []Category{CategoryVerbal, CategoryPhysical, CategoryPsychological, CategorySexual, CategoryCyberbullying, CategoryOther}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          Role
	FullName      string
	EmailVerified bool
	CreatedAt     time.Time
	VerifiedAt    *time.Time
	LastLoginAt   *time.Time
}

// Principal is the caller identity resolved from a session. Kind decides
// which capabilities apply; a zero Principal is anonymous.
type Principal struct {
	Kind  Role
	ID    string
	Email string
	Name  string
}

func StudentPrincipal(id, email, name string) Principal {
	return Principal{Kind: RoleStudent, ID: id, Email: email, Name: name}
}

func AdminPrincipal(id, email, name string) Principal {
	return Principal{Kind: RoleAdmin, ID: id, Email: email, Name: name}
}

func (p Principal) IsStudent() bool { return p.Kind == RoleStudent && p.ID != "" }
func (p Principal) IsAdmin() bool   { return p.Kind == RoleAdmin && p.ID != "" }
func (p Principal) Anonymous() bool { return !p.IsStudent() && !p.IsAdmin() }

type Evidence struct {
	Ref         string `json:"ref"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Complaint struct {
	ID               string
	TrackingNumber   string
	OwnerID          *string
	Anonymous        bool
	IncidentDate     string
	IncidentTime     string
	IncidentLocation string
	Category         *Category
	Description      string
	Status           Status
	InternalNotes    *string
	PublicNotes      *string
	Evidence         *Evidence
	SubmittedAt      time.Time
	UpdatedAt        time.Time
}

// HistoryEntry is one immutable audit row for a complaint.
type HistoryEntry struct {
	ID            string    `json:"id"`
	ComplaintID   string    `json:"complaint_id"`
	Status        Status    `json:"status"`
	Notes         *string   `json:"notes,omitempty"`
	ActingAdminID *string   `json:"acting_admin_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ComplaintQuery struct {
	Status Status
	Search string
	Limit  int
	Offset int
}

// ComplaintFacts is the read-side projection used by analytics.
type ComplaintFacts struct {
	ID          string
	Status      *string
	Category    *string
	Location    *string
	Anonymous   bool
	SubmittedAt time.Time
	ResolvedAt  *time.Time
}
