// Package store is the relational persistence layer: users, profiles and the
// append-only interaction log, kept in Postgres.
package store

import (
	"context"
	"errors"
	"time"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
)

var (
	// ErrNotFound is returned when a row, or a row referenced by a write,
	// does not exist. Malformed ids are reported the same way.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned on a unique constraint violation.
	ErrDuplicate = errors.New("store: duplicate")
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastOnline   *time.Time `json:"last_online,omitempty"`
}

// ProfileCard is the row shown in the browse list.
type ProfileCard struct {
	ID           string `json:"id"`
	ProfileID    string `json:"profile_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Age          int    `json:"age"`
	Location     string `json:"location"`
	Occupation   string `json:"occupation"`
	Education    string `json:"education"`
	ProfileImage string `json:"profile_image"`
}

// Fields exposes the filterable columns.
func (c ProfileCard) Fields() filter.Fields {
	return filter.Fields{
		Age:        c.Age,
		Location:   c.Location,
		Education:  c.Education,
		Occupation: c.Occupation,
	}
}

type ProfileImage struct {
	ID         string `json:"id"`
	ImageURL   string `json:"image_url"`
	IsPrimary  bool   `json:"is_primary"`
	OrderIndex int    `json:"order_index"`
}

type ProfileInterest struct {
	ID       string `json:"id"`
	Interest string `json:"interest"`
}

type ProfilePreference struct {
	ID                   string `json:"id"`
	AgeRange             string `json:"age_range"`
	LocationPreference   string `json:"location_preference"`
	EducationPreference  string `json:"education_preference"`
	OccupationPreference string `json:"occupation_preference"`
}

// ProfileDetail is a profile with its related images, interests and
// partner preferences.
type ProfileDetail struct {
	ProfileCard
	Bio         string              `json:"bio"`
	Height      string              `json:"height"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Images      []ProfileImage      `json:"profile_images"`
	Interests   []ProfileInterest   `json:"profile_interests"`
	Preferences []ProfilePreference `json:"profile_preferences"`
}

// Account is the member's own settings record. It is only ever written as
// a whole.
type Account struct {
	ID                string    `json:"id"`
	FullName          string    `json:"full_name"`
	Phone             string    `json:"phone"`
	Gender            string    `json:"gender"`
	DateOfBirth       string    `json:"date_of_birth"`
	Height            string    `json:"height"`
	MaritalStatus     string    `json:"marital_status"`
	Religion          string    `json:"religion"`
	MotherTongue      string    `json:"mother_tongue"`
	Location          string    `json:"location"`
	Education         string    `json:"education"`
	EducationDetails  string    `json:"education_details"`
	Occupation        string    `json:"occupation"`
	OccupationDetails string    `json:"occupation_details"`
	AnnualIncome      string    `json:"annual_income"`
	About             string    `json:"about"`
	FamilyDetails     string    `json:"family_details"`
	Diet              string    `json:"diet"`
	Smoking           string    `json:"smoking"`
	Drinking          string    `json:"drinking"`
	AvatarURL         string    `json:"avatar_url"`
	ProfileCompletion int       `json:"profile_completion"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Action string

const (
	ActionLike    Action = "like"
	ActionPass    Action = "pass"
	ActionMessage Action = "message"
)

func (a Action) Valid() bool {
	switch a {
	case ActionLike, ActionPass, ActionMessage:
		return true
	}
	return false
}

type NewInteraction struct {
	FromProfileID string
	ToProfileID   string
	Action        Action
	Message       string
}

// Interaction is one row of the append-only interaction log. CreatedAt is
// assigned by the database.
type Interaction struct {
	ID            string    `json:"id"`
	FromProfileID string    `json:"from_profile_id"`
	ToProfileID   string    `json:"to_profile_id"`
	Action        Action    `json:"action"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notification kinds.
const (
	NotifyInterest = "interest"
	NotifyMessage  = "message"
)

// Store is implemented by Postgres and by in-memory fakes in tests.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	TouchLastOnline(ctx context.Context, id string) error

	ListProfiles(ctx context.Context, pred filter.Predicate) ([]ProfileCard, error)
	ProfileDetail(ctx context.Context, profileID string) (ProfileDetail, error)
	ProfileCards(ctx context.Context, profileIDs []string) (map[string]ProfileCard, error)
	AddProfileImage(ctx context.Context, profileID, imageURL string) (ProfileImage, error)

	Account(ctx context.Context, userID string) (Account, error)
	UpsertAccount(ctx context.Context, a Account) (Account, error)

	RecordInteraction(ctx context.Context, in NewInteraction) (Interaction, error)
	InteractionsFrom(ctx context.Context, fromProfileID string) ([]Interaction, error)

	CreateNotification(ctx context.Context, userID, kind, actorID string) error
	CreateMessage(ctx context.Context, senderID, receiverID, body string) error
	UnreadNotifications(ctx context.Context, userID string) (int, error)
	UnreadMessages(ctx context.Context, userID string) (int, error)

	Ping(ctx context.Context) error
}
