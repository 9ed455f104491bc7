package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskflowhq/taskflow/internal/domain/project"
	"github.com/taskflowhq/taskflow/internal/domain/user"
)

type ProjectsRepo struct {
	pool *pgxpool.Pool
}

func NewProjectsRepo(pool *pgxpool.Pool) *ProjectsRepo {
	return &ProjectsRepo{pool: pool}
}

const projectSelect = `
	SELECT p.id, p.name, p.description, p.status, p.priority,
		p.start_date, p.end_date,
		p.owner_id, o.name, o.email,
		p.tags, p.progress, p.budget_amount, p.budget_currency, p.is_public,
		p.created_at, p.updated_at
	FROM projects p
	JOIN users o ON o.id = p.owner_id
`

func scanProject(row pgx.Row) (project.Project, error) {
	var p project.Project

	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Status, &p.Priority,
		&p.StartDate, &p.EndDate,
		&p.Owner.ID, &p.Owner.Name, &p.Owner.Email,
		&p.Tags, &p.Progress, &p.Budget.Amount, &p.Budget.Currency, &p.IsPublic,
		&p.CreatedAt, &p.UpdatedAt,
	)

	return p, err
}

func (r *ProjectsRepo) Create(ctx context.Context, p project.Project) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects
			(id, name, description, status, priority, start_date, end_date,
			owner_id, tags, progress, budget_amount, budget_currency, is_public,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Description, p.Status, p.Priority, p.StartDate, p.EndDate,
		p.Owner.ID, p.Tags, p.Progress, p.Budget.Amount, p.Budget.Currency, p.IsPublic,
		p.CreatedAt, p.UpdatedAt,
	)

	return err
}

func (r *ProjectsRepo) GetByID(ctx context.Context, id string) (project.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx, projectSelect+` WHERE p.id = $1`, id))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return project.Project{}, project.ErrNotFound
		}

		return project.Project{}, err
	}

	team, err := r.teamFor(ctx, []string{p.ID})

	if err != nil {
		return project.Project{}, err
	}

	p.Team = team[p.ID]

	if p.Team == nil {
		p.Team = []project.TeamMember{}
	}

	return p, nil
}

// ListForUser returns projects the user owns or belongs to, newest first.
func (r *ProjectsRepo) ListForUser(ctx context.Context, userID string, filter project.ListFilter) ([]project.Project, error) {
	conds := []string{
		`(p.owner_id = $1 OR EXISTS (
			SELECT 1 FROM project_members m
			WHERE m.project_id = p.id AND m.user_id = $1
		))`,
	}
	args := []interface{}{userID}

	argsPosition := 2

	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("p.status = $%d", argsPosition))
		args = append(args, *filter.Status)
		argsPosition++
	}

	if filter.Priority != nil {
		conds = append(conds, fmt.Sprintf("p.priority = $%d", argsPosition))
		args = append(args, *filter.Priority)
		argsPosition++
	}

	if filter.Search != nil {
		conds = append(conds, fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d)", argsPosition, argsPosition))
		args = append(args, "%"+*filter.Search+"%")
		argsPosition++
	}

	query := projectSelect + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY p.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]project.Project, 0)
	ids := make([]string, 0)

	for rows.Next() {
		p, err := scanProject(rows)

		if err != nil {
			return nil, err
		}

		output = append(output, p)
		ids = append(ids, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// hydrate team lists in a single pass instead of one query per project
	team, err := r.teamFor(ctx, ids)

	if err != nil {
		return nil, err
	}

	for i := range output {
		output[i].Team = team[output[i].ID]

		if output[i].Team == nil {
			output[i].Team = []project.TeamMember{}
		}
	}

	return output, nil
}

func (r *ProjectsRepo) Update(ctx context.Context, p project.Project) (project.Project, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE projects
			SET name = $2,
				description = $3,
				status = $4,
				priority = $5,
				start_date = $6,
				end_date = $7,
				tags = $8,
				progress = $9,
				budget_amount = $10,
				budget_currency = $11,
				is_public = $12,
				updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Status, p.Priority, p.StartDate, p.EndDate,
		p.Tags, p.Progress, p.Budget.Amount, p.Budget.Currency, p.IsPublic,
	)

	if err != nil {
		return project.Project{}, err
	}

	if tag.RowsAffected() == 0 {
		return project.Project{}, project.ErrNotFound
	}

	return r.GetByID(ctx, p.ID)
}

// Delete removes the project and (via FK) its team list. Tasks are NOT
// cascaded; they orphan and fail closed on later access.
func (r *ProjectsRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}

	return nil
}

// UpsertMember adds a team member or updates the existing entry's role in a
// single statement, so re-adding a user can never duplicate them.
func (r *ProjectsRepo) UpsertMember(ctx context.Context, projectID, userID, role string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		projectID, userID, role,
	)

	return err
}

func (r *ProjectsRepo) RemoveMember(ctx context.Context, projectID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)

	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

func (r *ProjectsRepo) CountOwnedBy(ctx context.Context, userID string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE owner_id = $1`,
		userID,
	).Scan(&n)

	return n, err
}

// CountForUser backs the dashboard project counter.
func (r *ProjectsRepo) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects p
		WHERE p.owner_id = $1 OR EXISTS (
			SELECT 1 FROM project_members m
			WHERE m.project_id = p.id AND m.user_id = $1
		)`,
		userID,
	).Scan(&n)

	return n, err
}

func (r *ProjectsRepo) teamFor(ctx context.Context, projectIDs []string) (map[string][]project.TeamMember, error) {
	out := make(map[string][]project.TeamMember, len(projectIDs))

	if len(projectIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT m.project_id, m.role, m.joined_at, u.id, u.name, u.email
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = ANY($1)
		ORDER BY m.joined_at ASC`,
		projectIDs,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var projectID string
		var m project.TeamMember
		var u user.Ref

		err = rows.Scan(&projectID, &m.Role, &m.JoinedAt, &u.ID, &u.Name, &u.Email)

		if err != nil {
			return nil, err
		}

		m.User = u
		out[projectID] = append(out[projectID], m)
	}

	return out, rows.Err()
}
