package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
)

type TasksRepo struct {
	pool *pgxpool.Pool
}

func NewTasksRepo(pool *pgxpool.Pool) *TasksRepo {
	return &TasksRepo{pool: pool}
}

// LEFT JOIN on projects: orphaned tasks (parent deleted) still scan, with an
// empty project name; access to them fails closed at the handler because the
// parent lookup returns nothing.
const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority,
		t.project_id, COALESCE(p.name, ''),
		t.assigned_to, a.name, a.email,
		t.created_by, c.name, c.email,
		t.due_date, t.estimated_hours, t.actual_hours, t.tags,
		t.is_completed, t.completed_at, t.sort_order,
		t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN projects p ON p.id = t.project_id
	LEFT JOIN users a ON a.id = t.assigned_to
	JOIN users c ON c.id = t.created_by
`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	var assignedID, assignedName, assignedEmail *string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Project.ID, &t.Project.Name,
		&assignedID, &assignedName, &assignedEmail,
		&t.CreatedBy.ID, &t.CreatedBy.Name, &t.CreatedBy.Email,
		&t.DueDate, &t.EstimatedHours, &t.ActualHours, &t.Tags,
		&t.IsCompleted, &t.CompletedAt, &t.Order,
		&t.CreatedAt, &t.UpdatedAt,
	)

	if err != nil {
		return task.Task{}, err
	}

	if assignedID != nil {
		t.AssignedTo = &user.Ref{ID: *assignedID}

		if assignedName != nil {
			t.AssignedTo.Name = *assignedName
		}

		if assignedEmail != nil {
			t.AssignedTo.Email = *assignedEmail
		}
	}

	t.Comments = []task.Comment{}

	return t, nil
}

func (r *TasksRepo) commentsFor(ctx context.Context, taskID string) ([]task.Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.body, c.created_at, u.id, u.name, u.email
		FROM task_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id = $1
		ORDER BY c.created_at ASC`,
		taskID,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]task.Comment, 0)

	for rows.Next() {
		var c task.Comment

		err = rows.Scan(&c.ID, &c.Text, &c.CreatedAt, &c.User.ID, &c.User.Name, &c.User.Email)

		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// NextOrder picks the display order for a new task within its status column.
func (r *TasksRepo) NextOrder(ctx context.Context, projectID, status string) (int, error) {
	var order int

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM tasks WHERE project_id = $1 AND status = $2`,
		projectID, status,
	).Scan(&order)

	return order, err
}

func (r *TasksRepo) Create(ctx context.Context, t task.Task) error {
	var assignedTo *string

	if t.AssignedTo != nil {
		assignedTo = &t.AssignedTo.ID
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks
			(id, title, description, status, priority, project_id, assigned_to,
			created_by, due_date, estimated_hours, actual_hours, tags,
			is_completed, completed_at, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.Project.ID, assignedTo,
		t.CreatedBy.ID, t.DueDate, t.EstimatedHours, t.ActualHours, t.Tags,
		t.IsCompleted, t.CompletedAt, t.Order, t.CreatedAt, t.UpdatedAt,
	)

	return err
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}

		return task.Task{}, err
	}

	comments, err := r.commentsFor(ctx, id)

	if err != nil {
		return task.Task{}, err
	}

	t.Comments = comments

	return t, nil
}

// ListForUser returns tasks across every project the user owns or belongs
// to. Public projects are excluded here, matching the project list.
func (r *TasksRepo) ListForUser(ctx context.Context, userID string, filter task.ListFilter) ([]task.Task, error) {
	conds := []string{
		`EXISTS (
			SELECT 1 FROM projects pp
			WHERE pp.id = t.project_id
			AND (pp.owner_id = $1 OR EXISTS (
				SELECT 1 FROM project_members m
				WHERE m.project_id = pp.id AND m.user_id = $1
			))
		)`,
	}
	args := []interface{}{userID}

	return r.list(ctx, conds, args, 2, filter)
}

// ListAssignedTo backs /users/tasks: everything assigned to the caller.
func (r *TasksRepo) ListAssignedTo(ctx context.Context, userID string, filter task.ListFilter) ([]task.Task, error) {
	conds := []string{"t.assigned_to = $1"}
	args := []interface{}{userID}

	rowsConds, rowsArgs, _ := appendTaskFilters(conds, args, 2, filter)

	query := taskSelect + " WHERE " + strings.Join(rowsConds, " AND ") +
		" ORDER BY t.due_date ASC NULLS LAST, t.priority DESC"

	return r.query(ctx, query, rowsArgs)
}

func (r *TasksRepo) list(ctx context.Context, conds []string, args []interface{}, argsPosition int, filter task.ListFilter) ([]task.Task, error) {
	conds, args, _ = appendTaskFilters(conds, args, argsPosition, filter)

	query := taskSelect + " WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY t.sort_order ASC, t.created_at DESC"

	return r.query(ctx, query, args)
}

func appendTaskFilters(conds []string, args []interface{}, argsPosition int, filter task.ListFilter) ([]string, []interface{}, int) {
	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("t.status = $%d", argsPosition))
		args = append(args, *filter.Status)
		argsPosition++
	}

	if filter.Priority != nil {
		conds = append(conds, fmt.Sprintf("t.priority = $%d", argsPosition))
		args = append(args, *filter.Priority)
		argsPosition++
	}

	if filter.AssignedTo != nil {
		conds = append(conds, fmt.Sprintf("t.assigned_to = $%d", argsPosition))
		args = append(args, *filter.AssignedTo)
		argsPosition++
	}

	if filter.Search != nil {
		conds = append(conds, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d)", argsPosition, argsPosition))
		args = append(args, "%"+*filter.Search+"%")
		argsPosition++
	}

	if filter.Overdue {
		conds = append(conds, "t.due_date < NOW() AND NOT t.is_completed")
	}

	if filter.DueDate != nil {
		conds = append(conds, fmt.Sprintf("t.due_date >= $%d AND t.due_date < $%d + INTERVAL '1 day'", argsPosition, argsPosition))
		args = append(args, *filter.DueDate)
		argsPosition++
	}

	return conds, args, argsPosition
}

func (r *TasksRepo) query(ctx context.Context, query string, args []interface{}) ([]task.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]task.Task, 0)

	for rows.Next() {
		t, err := scanTask(rows)

		if err != nil {
			return nil, err
		}

		output = append(output, t)
	}

	return output, rows.Err()
}

func (r *TasksRepo) Update(ctx context.Context, t task.Task) (task.Task, error) {
	var assignedTo *string

	if t.AssignedTo != nil {
		assignedTo = &t.AssignedTo.ID
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks
			SET title = $2,
				description = $3,
				status = $4,
				priority = $5,
				assigned_to = $6,
				due_date = $7,
				estimated_hours = $8,
				tags = $9,
				is_completed = $10,
				completed_at = $11,
				sort_order = $12,
				updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, assignedTo,
		t.DueDate, t.EstimatedHours, t.Tags, t.IsCompleted, t.CompletedAt, t.Order,
	)

	if err != nil {
		return task.Task{}, err
	}

	if tag.RowsAffected() == 0 {
		return task.Task{}, task.ErrNotFound
	}

	return r.GetByID(ctx, t.ID)
}

func (r *TasksRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}

	return nil
}

func (r *TasksRepo) AddComment(ctx context.Context, taskID string, c task.Comment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO task_comments (id, task_id, user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, taskID, c.User.ID, c.Text, c.CreatedAt,
	)

	return err
}

// LogTime accumulates actual hours in a single statement, so concurrent logs
// never drop each other.
func (r *TasksRepo) LogTime(ctx context.Context, taskID string, hours float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET actual_hours = actual_hours + $2, updated_at = NOW() WHERE id = $1`,
		taskID, hours,
	)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}

	return nil
}

func (r *TasksRepo) CountAssignedTo(ctx context.Context, userID string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE assigned_to = $1`,
		userID,
	).Scan(&n)

	return n, err
}

func (r *TasksRepo) ProjectStats(ctx context.Context, projectID string) (task.Stats, error) {
	var s task.Stats

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_completed),
			COUNT(*) FILTER (WHERE due_date < NOW() AND NOT is_completed)
		FROM tasks WHERE project_id = $1`,
		projectID,
	).Scan(&s.TotalTasks, &s.CompletedTasks, &s.OverdueTasks)

	if err != nil {
		return task.Stats{}, err
	}

	if s.TotalTasks > 0 {
		s.Progress = int(float64(s.CompletedTasks)/float64(s.TotalTasks)*100 + 0.5)
	}

	s.TasksByStatus, err = r.groupCount(ctx, "status", "project_id", projectID)

	if err != nil {
		return task.Stats{}, err
	}

	s.TasksByPriority, err = r.groupCount(ctx, "priority", "project_id", projectID)

	if err != nil {
		return task.Stats{}, err
	}

	return s, nil
}

// Dashboard aggregates the caller's assigned tasks; the project counter is
// filled in by the handler from the projects repo.
func (r *TasksRepo) Dashboard(ctx context.Context, userID string) (task.Dashboard, error) {
	var d task.Dashboard

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_completed),
			COUNT(*) FILTER (WHERE due_date < NOW() AND NOT is_completed),
			COUNT(*) FILTER (WHERE due_date >= date_trunc('day', NOW())
				AND due_date < date_trunc('day', NOW()) + INTERVAL '1 day')
		FROM tasks WHERE assigned_to = $1`,
		userID,
	).Scan(&d.Stats.TotalTasks, &d.Stats.CompletedTasks, &d.Stats.OverdueTasks, &d.Stats.TodayTasks)

	if err != nil {
		return task.Dashboard{}, err
	}

	if d.Stats.TotalTasks > 0 {
		d.Stats.CompletionRate = int(float64(d.Stats.CompletedTasks)/float64(d.Stats.TotalTasks)*100 + 0.5)
	}

	now := time.Now().UTC()

	upcoming, err := r.query(ctx,
		taskSelect+` WHERE t.assigned_to = $1
			AND t.due_date >= $2 AND t.due_date <= $3
			AND NOT t.is_completed
		ORDER BY t.due_date ASC
		LIMIT 10`,
		[]interface{}{userID, now, now.Add(7 * 24 * time.Hour)},
	)

	if err != nil {
		return task.Dashboard{}, err
	}

	d.UpcomingTasks = upcoming

	d.TasksByStatus, err = r.groupCount(ctx, "status", "assigned_to", userID)

	if err != nil {
		return task.Dashboard{}, err
	}

	d.TasksByPriority, err = r.groupCount(ctx, "priority", "assigned_to", userID)

	if err != nil {
		return task.Dashboard{}, err
	}

	return d, nil
}

// groupCount buckets tasks by an enum column. Both column names come from
// call sites, never from input.
func (r *TasksRepo) groupCount(ctx context.Context, groupCol, whereCol, value string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM tasks WHERE %s = $1 GROUP BY %s`, groupCol, whereCol, groupCol),
		value,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make(map[string]int)

	for rows.Next() {
		var key string
		var n int

		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}

		out[key] = n
	}

	return out, rows.Err()
}
