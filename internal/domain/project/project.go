package project

import (
	"errors"
	"time"

	"github.com/taskflowhq/taskflow/internal/domain/user"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrInvalidDate = errors.New("end date must be after start date")
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusOnHold    = "on-hold"
	StatusCancelled = "cancelled"
)

const (
	RoleMember = "member"
	RoleLead   = "lead"
	RoleViewer = "viewer"
)

type TeamMember struct {
	User     user.Ref  `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Budget struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Priority    string       `json:"priority"`
	StartDate   time.Time    `json:"startDate"`
	EndDate     time.Time    `json:"endDate"`
	Owner       user.Ref     `json:"owner"`
	Team        []TeamMember `json:"team"`
	Tags        []string     `json:"tags"`
	Progress    int          `json:"progress"`
	Budget      Budget       `json:"budget"`
	IsPublic    bool         `json:"isPublic"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ValidateDates enforces startDate < endDate before persistence.
func ValidateDates(start, end time.Time) error {
	if !start.Before(end) {
		return ErrInvalidDate
	}

	return nil
}

func (p Project) IsOwner(userID string) bool {
	return p.Owner.ID == userID
}

// MemberRole returns the stored team role for a user, if any.
func (p Project) MemberRole(userID string) (string, bool) {
	for _, m := range p.Team {
		if m.User.ID == userID {
			return m.Role, true
		}
	}

	return "", false
}

// UpsertMember adds a user to the team or, if already present, updates the
// existing entry's role. The team never holds two entries for one user.
func (p *Project) UpsertMember(u user.Ref, role string) {
	for i := range p.Team {
		if p.Team[i].User.ID == u.ID {
			p.Team[i].Role = role
			return
		}
	}

	p.Team = append(p.Team, TeamMember{
		User:     u,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	})
}

func (p *Project) RemoveMember(userID string) bool {
	for i := range p.Team {
		if p.Team[i].User.ID == userID {
			p.Team = append(p.Team[:i], p.Team[i+1:]...)
			return true
		}
	}

	return false
}

type CreateProjectRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=100"`
	Description string    `json:"description" binding:"required,min=10,max=500"`
	StartDate   time.Time `json:"startDate" binding:"required"`
	EndDate     time.Time `json:"endDate" binding:"required"`
	Priority    string    `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Tags        []string  `json:"tags" binding:"omitempty,dive,max=30"`
	Budget      *Budget   `json:"budget"`
	IsPublic    bool      `json:"isPublic"`
}

type UpdateProjectRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=100"`
	Description string    `json:"description" binding:"required,min=10,max=500"`
	StartDate   time.Time `json:"startDate" binding:"required"`
	EndDate     time.Time `json:"endDate" binding:"required"`
	Status      string    `json:"status" binding:"omitempty,oneof=active completed on-hold cancelled"`
	Priority    string    `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Tags        []string  `json:"tags" binding:"omitempty,dive,max=30"`
	Progress    *int      `json:"progress" binding:"omitempty,min=0,max=100"`
	Budget      *Budget   `json:"budget"`
	IsPublic    *bool     `json:"isPublic"`
}

type AddTeamMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"omitempty,oneof=member lead viewer"`
}

type ListFilter struct {
	Status   *string
	Priority *string
	Search   *string
}
