package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// MediaType is the closed set of item kinds that carry their own lending policy.
// Tags outside the set parse to MediaTypeOther and get the default policy.
type MediaType int

const (
	MediaTypeOther MediaType = iota
	MediaTypeBook
	MediaTypeCD
)

func ParseMediaType(tag string) MediaType {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "BOOK":
		return MediaTypeBook
	case "CD":
		return MediaTypeCD
	default:
		return MediaTypeOther
	}
}

func (t MediaType) String() string {
	switch t {
	case MediaTypeBook:
		return "BOOK"
	case MediaTypeCD:
		return "CD"
	default:
		return "OTHER"
	}
}

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Terminal reports whether no further transition may leave s.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationFulfilled || s == ReservationCancelled || s == ReservationExpired
}

type User struct {
	ID        uint      `gorm:"primaryKey" json:"userId"`
	Username  string    `gorm:"size:80;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Role      Role      `gorm:"size:20;not null;default:'MEMBER'" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

type MediaItem struct {
	ID              uint            `gorm:"primaryKey" json:"itemId"`
	Title           string          `gorm:"size:255;not null;index" json:"title"`
	Author          string          `gorm:"size:255;index" json:"author"`
	Type            string          `gorm:"size:40;not null;index" json:"type"`
	ISBN            *string         `gorm:"size:32;uniqueIndex" json:"isbn,omitempty"`
	PublicationDate *time.Time      `json:"publicationDate,omitempty"`
	Publisher       string          `gorm:"size:255" json:"publisher"`
	TotalCopies     int             `gorm:"not null" json:"totalCopies"`
	AvailableCopies int             `gorm:"not null" json:"availableCopies"` // may go negative
	LateFeesPerDay  decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"lateFeesPerDay"`
	CreatedAt       time.Time       `json:"-"`
	UpdatedAt       time.Time       `json:"-"`
}

func (m MediaItem) MediaType() MediaType {
	return ParseMediaType(m.Type)
}

type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"loanId"`
	UserID     uint       `gorm:"not null;index" json:"userId"`
	ItemID     uint       `gorm:"not null;index" json:"itemId"`
	LoanDate   time.Time  `gorm:"not null" json:"loanDate"`
	DueDate    time.Time  `gorm:"not null" json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     LoanStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`

	User User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Item MediaItem `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"-"`
}

type Reservation struct {
	ID              uint              `gorm:"primaryKey" json:"reservationId"`
	UserID          uint              `gorm:"not null;index" json:"userId"`
	ItemID          uint              `gorm:"not null;index:idx_reservation_queue,priority:1" json:"itemId"`
	ReservationDate time.Time         `gorm:"not null;index:idx_reservation_queue,priority:3" json:"reservationDate"`
	Sequence        int64             `gorm:"not null;index:idx_reservation_queue,priority:4" json:"sequence"`
	ExpiryDate      time.Time         `gorm:"not null;index" json:"expiryDate"`
	Status          ReservationStatus `gorm:"size:20;not null;index:idx_reservation_queue,priority:2" json:"status"`
	CreatedAt       time.Time         `json:"-"`
	UpdatedAt       time.Time         `json:"-"`

	User User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Item MediaItem `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"-"`
}

type Fine struct {
	ID        uint            `gorm:"primaryKey" json:"fineId"`
	LoanID    uint            `gorm:"not null;uniqueIndex" json:"loanId"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Paid      bool            `gorm:"not null;default:false" json:"paid"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"-"`

	Loan Loan `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE" json:"-"`
}

// All lists every entity in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &MediaItem{}, &Loan{}, &Reservation{}, &Fine{}}
}
