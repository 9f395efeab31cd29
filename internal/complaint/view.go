package complaint

import (
	"time"

	"raggingwatch/internal/models"
)

// View is what a submitter may see. It has no field for internal notes or
// the owning account.
type View struct {
	ID               string           `json:"id"`
	TrackingNumber   string           `json:"tracking_number"`
	Status           models.Status    `json:"status"`
	IncidentDate     string           `json:"incident_date"`
	IncidentTime     string           `json:"incident_time"`
	IncidentLocation string           `json:"incident_location"`
	Category         *models.Category `json:"category,omitempty"`
	Description      string           `json:"description"`
	Anonymous        bool             `json:"anonymous"`
	PublicNotes      *string          `json:"public_notes,omitempty"`
	HasEvidence      bool             `json:"has_evidence"`
	EvidenceFileName string           `json:"evidence_file_name,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// AdminView adds the fields only administrators may read.
type AdminView struct {
	View
	InternalNotes *string          `json:"internal_notes,omitempty"`
	OwnerID       *string          `json:"owner_id,omitempty"`
	Evidence      *models.Evidence `json:"evidence,omitempty"`
}

func publicView(c models.Complaint) View {
	v := View{
		ID:               c.ID,
		TrackingNumber:   c.TrackingNumber,
		Status:           c.Status,
		IncidentDate:     c.IncidentDate,
		IncidentTime:     c.IncidentTime,
		IncidentLocation: c.IncidentLocation,
		Category:         c.Category,
		Description:      c.Description,
		Anonymous:        c.Anonymous,
		PublicNotes:      c.PublicNotes,
		SubmittedAt:      c.SubmittedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.Evidence != nil {
		v.HasEvidence = true
		v.EvidenceFileName = c.Evidence.FileName
	}
	return v
}

func adminView(c models.Complaint) AdminView {
	v := AdminView{
		View:          publicView(c),
		InternalNotes: c.InternalNotes,
		Evidence:      c.Evidence,
	}
	if !c.Anonymous {
		v.OwnerID = c.OwnerID
	}
	return v
}
