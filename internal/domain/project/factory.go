package project

import (
	"time"

	"github.com/google/uuid"
	"github.com/taskflowhq/taskflow/internal/domain/user"
)

func NewFromCreateRequest(req CreateProjectRequest, owner user.Ref) Project {
	now := time.Now().UTC()

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	budget := Budget{Amount: 0, Currency: "USD"}
	if req.Budget != nil {
		budget = *req.Budget
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	return Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Status:      StatusActive,
		Priority:    priority,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Owner:       owner,
		Team:        []TeamMember{},
		Tags:        tags,
		Progress:    0,
		Budget:      budget,
		IsPublic:    req.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
