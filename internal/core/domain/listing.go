package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type ListingKind string

const (
	ListingKindSeminar ListingKind = "seminar"
	ListingKindCourse  ListingKind = "course"
)

type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusPublished ListingStatus = "published"
	ListingStatusSoldOut   ListingStatus = "sold_out"
	ListingStatusFinished  ListingStatus = "finished"
)

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityVirtual  Modality = "virtual"
	ModalityHybrid   Modality = "hybrid"
)

// Listing is a seminar or course with a finite number of seats.
// AvailableSlots is only ever changed by the reservation and release
// primitives of a DatabaseRepository.
type Listing struct {
	ID               string        `json:"id"`
	Kind             ListingKind   `json:"kind"`
	Title            string        `json:"title"`
	Slug             string        `json:"slug"`
	ShortDescription string        `json:"shortDescription"`
	Description      string        `json:"description"`
	Instructor       string        `json:"instructor"`
	Modality         Modality      `json:"modality"`
	Location         string        `json:"location,omitempty"`
	VirtualLink      string        `json:"virtualLink,omitempty"`
	Price            int64         `json:"price"`
	TotalSlots       int           `json:"totalSlots"`
	AvailableSlots   int           `json:"availableSlots"`
	Status           ListingStatus `json:"status"`
	Featured         bool          `json:"featured"`
	StartsAt         time.Time     `json:"startsAt"`
	EndsAt           *time.Time    `json:"endsAt,omitempty"`
	Level            string        `json:"level,omitempty"`
	Category         string        `json:"category,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// HeldSlots is the number of seats currently reserved or sold.
func (l *Listing) HeldSlots() int {
	return l.TotalSlots - l.AvailableSlots
}

func (l *Listing) IsPublished() bool {
	return l.Status == ListingStatusPublished
}

// ListingUpdate carries the admin-editable fields of a listing.
// A nil pointer leaves the field untouched.
type ListingUpdate struct {
	Title            *string
	ShortDescription *string
	Description      *string
	Instructor       *string
	Modality         *Modality
	Location         *string
	VirtualLink      *string
	Price            *int64
	TotalSlots       *int
	Status           *ListingStatus
	Featured         *bool
	StartsAt         *time.Time
	EndsAt           *time.Time
	Level            *string
	Category         *string
}

// Apply copies the non-capacity fields of u onto l. Capacity changes are
// handed to the store separately so it can guard them against held seats.
func (u ListingUpdate) Apply(l *Listing) {
	if u.Title != nil {
		l.Title = *u.Title
		l.Slug = Slugify(*u.Title)
	}
	if u.ShortDescription != nil {
		l.ShortDescription = *u.ShortDescription
	}
	if u.Description != nil {
		l.Description = *u.Description
	}
	if u.Instructor != nil {
		l.Instructor = *u.Instructor
	}
	if u.Modality != nil {
		l.Modality = *u.Modality
	}
	if u.Location != nil {
		l.Location = *u.Location
	}
	if u.VirtualLink != nil {
		l.VirtualLink = *u.VirtualLink
	}
	if u.Price != nil {
		l.Price = *u.Price
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.Featured != nil {
		l.Featured = *u.Featured
	}
	if u.StartsAt != nil {
		l.StartsAt = *u.StartsAt
	}
	if u.EndsAt != nil {
		l.EndsAt = u.EndsAt
	}
	if u.Level != nil {
		l.Level = *u.Level
	}
	if u.Category != nil {
		l.Category = *u.Category
	}
}

type ListingFilter struct {
	Kind          ListingKind
	PublishedOnly bool
	FeaturedOnly  bool
	Page          int
	Limit         int
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugSpaces   = regexp.MustCompile(`[\s_-]+`)
	slugEdgeDash = regexp.MustCompile(`^-+|-+$`)
)

// Slugify turns a title into a URL slug. Accents are folded first, so
// "Negociación" becomes "negociacion".
func Slugify(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(fold, title)
	if err != nil {
		s = title
	}
	s = strings.TrimSpace(strings.ToLower(s))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	return slugEdgeDash.ReplaceAllString(s, "")
}
