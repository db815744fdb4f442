package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subject categorizes a request.
type Subject string

const (
	SubjectCourseRelated  Subject = "course-related"
	SubjectFacultyRequest Subject = "faculty-request"
	SubjectAdministrative Subject = "administrative"
	SubjectOther          Subject = "other"
)

// Valid reports whether s is a known subject.
func (s Subject) Valid() bool {
	switch s {
	case SubjectCourseRelated, SubjectFacultyRequest, SubjectAdministrative, SubjectOther:
		return true
	}
	return false
}

// RequestStatus represents the review state of a request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Request is a user-submitted item under administrative review.
type Request struct {
	ID              uuid.UUID     `json:"id" gorm:"type:char(36);primaryKey"`
	RequestID       string        `json:"requestId" gorm:"uniqueIndex;size:32;not null"`
	Sequence        int64         `json:"-" gorm:"uniqueIndex;not null"`
	UserID          uuid.UUID     `json:"-" gorm:"type:char(36);not null;index"`
	Subject         Subject       `json:"subject" gorm:"size:32;not null"`
	Description     string        `json:"description" gorm:"type:text;not null"`
	Status          RequestStatus `json:"status" gorm:"size:16;not null;default:'pending';index"`
	AdminResponse   string        `json:"adminResponse,omitempty" gorm:"type:text"`
	AdminActionDate *time.Time    `json:"adminActionDate,omitempty"`
	AdminActionBy   *uuid.UUID    `json:"adminActionBy,omitempty" gorm:"type:char(36)"`
	CreatedAt       time.Time     `json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	// Relations
	User           *User        `json:"-" gorm:"foreignKey:UserID"`
	Reviewer       *User        `json:"-" gorm:"foreignKey:AdminActionBy;constraint:OnDelete:SET NULL"`
	Attachments    []Attachment `json:"attachments" gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
	RemarksHistory []Remark     `json:"remarksHistory" gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
}

// PersonRef names a user without exposing contact details.
type PersonRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ContactRef is the owner view embedded in a request.
type ContactRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

func personRef(id uuid.UUID, u *User) *PersonRef {
	ref := &PersonRef{ID: id}
	if u != nil {
		ref.Name = u.Name
	}
	return ref
}

// MarshalJSON renders related users as name-only references. The owner
// additionally carries an email.
func (r Request) MarshalJSON() ([]byte, error) {
	type plain Request
	out := struct {
		plain
		User          *ContactRef `json:"user,omitempty"`
		AdminActionBy *PersonRef  `json:"adminActionBy,omitempty"`
	}{plain: plain(r)}
	if r.User != nil {
		out.User = &ContactRef{ID: r.User.ID, Name: r.User.Name, Email: r.User.Email}
	}
	if r.AdminActionBy != nil {
		out.AdminActionBy = personRef(*r.AdminActionBy, r.Reviewer)
	}
	return json.Marshal(out)
}

// BeforeCreate sets UUID and default status before creating the record.
func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return nil
}

// Attachment is metadata for a file previously stored through the upload endpoint.
type Attachment struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	RequestID  uuid.UUID `json:"-" gorm:"type:char(36);not null;index"`
	FileName   string    `json:"fileName" gorm:"size:255;not null"`
	FilePath   string    `json:"filePath" gorm:"size:1024;not null"`
	FileType   string    `json:"fileType" gorm:"size:128"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Remark is an append-only review note. Rows are never updated or deleted.
type Remark struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	RequestID uuid.UUID `json:"-" gorm:"type:char(36);not null;index"`
	Remark    string    `json:"remark" gorm:"type:text;not null"`
	CreatedBy uuid.UUID `json:"-" gorm:"type:char(36);not null"`
	CreatedAt time.Time `json:"createdAt"`

	Author *User `json:"-" gorm:"foreignKey:CreatedBy"`
}

// MarshalJSON renders the author by name only.
func (m Remark) MarshalJSON() ([]byte, error) {
	type plain Remark
	return json.Marshal(struct {
		plain
		CreatedBy *PersonRef `json:"createdBy"`
	}{plain: plain(m), CreatedBy: personRef(m.CreatedBy, m.Author)})
}

// Counter is a named monotonically increasing sequence.
type Counter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null;default:0"`
}

// RequestCounter names the counter backing human-readable request ids.
const RequestCounter = "requests"
