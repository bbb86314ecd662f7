package coach

import (
	"time"

	"gymstudio.app/internal/notify"
)

// Category is the discipline a coach is invited for.
type Category string

const (
	CategoryCycling    Category = "cycling"
	CategoryFunctional Category = "functional"
	CategoryBoth       Category = "both"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCycling, CategoryFunctional, CategoryBoth:
		return true
	}
	return false
}

// InvitationState is the lifecycle of an invitation token.
type InvitationState string

const (
	InvitationPending   InvitationState = "pending"
	InvitationUsed      InvitationState = "used"
	InvitationCancelled InvitationState = "cancelled"
	InvitationExpired   InvitationState = "expired"
)

// Invitation is a single-use, time-limited onboarding invitation.
type Invitation struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Category      Category        `json:"category"`
	State         InvitationState `json:"state"`
	Token         string          `json:"-"`
	ExpiresAt     time.Time       `json:"expires_at"`
	InvitedBy     string          `json:"invited_by"`
	CustomMessage string          `json:"custom_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	UsedAt        *time.Time      `json:"used_at,omitempty"`
	UsedBy        string          `json:"used_by,omitempty"`
}

// InvitationView is what an invitee sees when opening the link.
type InvitationView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Category      Category  `json:"category"`
	ExpiresAt     time.Time `json:"expires_at"`
	CustomMessage string    `json:"custom_message,omitempty"`
}

func (inv Invitation) View() InvitationView {
	return InvitationView{
		ID:            inv.ID,
		Email:         inv.Email,
		Category:      inv.Category,
		ExpiresAt:     inv.ExpiresAt,
		CustomMessage: inv.CustomMessage,
	}
}

// State is the coach lifecycle state.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateRejected State = "rejected"
)

// Profile holds the coach's personal fields.
type Profile struct {
	FullName        string    `json:"full_name"`
	Phone           string    `json:"phone"`
	BirthDate       time.Time `json:"birth_date"`
	Address         string    `json:"address,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Specialties     []string  `json:"specialties,omitempty"`
	YearsExperience int       `json:"years_experience"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
}

// BankDetails is where the studio pays the coach.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	TaxID         string `json:"tax_id,omitempty"`
}

// EmergencyContact is who to call if something happens in class.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// Coach is a studio coach. ID equals the identity account id.
type Coach struct {
	ID                     string           `json:"id"`
	Email                  string           `json:"email"`
	State                  State            `json:"state"`
	Active                 bool             `json:"active"`
	Category               Category         `json:"category"`
	Profile                Profile          `json:"profile"`
	Bank                   BankDetails      `json:"bank"`
	Emergency              EmergencyContact `json:"emergency_contact"`
	ApprovedAt             *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy             string           `json:"approved_by,omitempty"`
	RejectionReason        string           `json:"rejection_reason,omitempty"`
	RejectedAt             *time.Time       `json:"rejected_at,omitempty"`
	RejectedBy             string           `json:"rejected_by,omitempty"`
	Corrections            []string         `json:"corrections,omitempty"`
	CorrectionsRequestedAt *time.Time       `json:"corrections_requested_at,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// ProfileRecord is the per-user role record of the identity layer.
type ProfileRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentType enumerates the document kinds a coach uploads.
type DocumentType string

const (
	DocIDDocument         DocumentType = "id_document"
	DocProofOfAddress     DocumentType = "proof_of_address"
	DocTaxCertificate     DocumentType = "tax_certificate"
	DocBankStatement      DocumentType = "bank_statement"
	DocResume             DocumentType = "resume"
	DocMedicalCertificate DocumentType = "medical_certificate"
)

// RequiredDocuments must be present for onboarding and for a complete verification.
var RequiredDocuments = []DocumentType{DocIDDocument, DocProofOfAddress, DocTaxCertificate, DocBankStatement}

// OptionalDocuments may be supplied.
var OptionalDocuments = []DocumentType{DocResume, DocMedicalCertificate}

func (t DocumentType) Valid() bool {
	for _, d := range RequiredDocuments {
		if d == t {
			return true
		}
	}
	for _, d := range OptionalDocuments {
		if d == t {
			return true
		}
	}
	return false
}

// DocumentStatus is the per-document review state.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is one uploaded file under review. Verified mirrors Status == verified.
type Document struct {
	ID         string         `json:"id"`
	CoachID    string         `json:"coach_id"`
	Type       DocumentType   `json:"type"`
	FileURL    string         `json:"file_url"`
	Status     DocumentStatus `json:"status"`
	Verified   bool           `json:"verified"`
	VerifiedBy string         `json:"verified_by,omitempty"`
	VerifiedAt *time.Time     `json:"verified_at,omitempty"`
	ReviewNote string         `json:"review_note,omitempty"`
	ReviewedBy string         `json:"reviewed_by,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at"`
}

// Certification is a professional credential.
type Certification struct {
	ID           string     `json:"id"`
	CoachID      string     `json:"coach_id"`
	Name         string     `json:"name"`
	Institution  string     `json:"institution"`
	ObtainedDate time.Time  `json:"obtained_date"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	FileURL      string     `json:"file_url,omitempty"`
	Verified     bool       `json:"verified"`
	VerifiedBy   string     `json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

// ContractType is the compensation scheme.
type ContractType string

const (
	ContractPerClass ContractType = "per_class"
	ContractSalaried ContractType = "salaried"
	ContractMixed    ContractType = "mixed"
)

func (t ContractType) Valid() bool {
	switch t {
	case ContractPerClass, ContractSalaried, ContractMixed:
		return true
	}
	return false
}

// ContractState of a single version.
type ContractState string

const (
	ContractActive     ContractState = "active"
	ContractSuperseded ContractState = "superseded"
	ContractTerminated ContractState = "terminated"
)

// Contract is one immutable version. Money is in minor units; nil means not specified.
type Contract struct {
	ID                 string        `json:"id"`
	CoachID            string        `json:"coach_id"`
	Type               ContractType  `json:"contract_type"`
	StartDate          time.Time     `json:"start_date"`
	EndDate            *time.Time    `json:"end_date,omitempty"`
	State              ContractState `json:"state"`
	Signed             bool          `json:"signed"`
	Current            bool          `json:"current"`
	Version            int           `json:"version"`
	Supersedes         string        `json:"supersedes,omitempty"`
	DocumentURL        string        `json:"document_url"`
	DocumentSHA256     string        `json:"document_sha256"`
	BaseSalary         *int64        `json:"base_salary,omitempty"`
	PerClassCommission *int64        `json:"per_class_commission,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	SignedAt           *time.Time    `json:"signed_at,omitempty"`
	SignatureIP        string        `json:"signature_ip,omitempty"`
	IssuedBy           string        `json:"issued_by"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Signature is a captured digital signature.
type Signature struct {
	ImagePNG []byte
	SignedAt time.Time
	IP       string
}

// Upload is a file payload from a form.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Notification is the in-app notification record.
type Notification = notify.Notification
