package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const selectTask = `
SELECT t.id, t.title, t.description, t.status, t.priority,
       t.author_id, au.email, t.assignee_id, asg.email,
       t.created_at, t.updated_at
FROM tasks t
JOIN users au ON au.id = t.author_id
LEFT JOIN users asg ON asg.id = t.assignee_id`

// SQLiteStore persists tasks and comments in the shared SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore returns a store over db, which must carry the tms schema.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// checkUsers returns ErrUnknownUser unless every referenced user exists.
func (s *SQLiteStore) checkUsers(ctx context.Context, t *Task) error {
	ids := []int64{t.Author.ID}
	if t.Assignee != nil {
		ids = append(ids, t.Assignee.ID)
	}
	for _, id := range ids {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrUnknownUser, id)
		}
		if err != nil {
			return fmt.Errorf("check user %d: %w", id, err)
		}
	}
	return nil
}

func assigneeID(t *Task) any {
	if t.Assignee == nil {
		return nil
	}
	return t.Assignee.ID
}

// Create persists a new task and sets its ID, CreatedAt, and UpdatedAt.
// Author and assignee emails are refreshed from the users table.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) error {
	if err := s.checkUsers(ctx, t); err != nil {
		return err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, status, priority, author_id, assignee_id, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Author.ID, assigneeID(t), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	stored, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectTask+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// Update saves every field of an existing task and refreshes UpdatedAt and
// the user emails on t.
func (s *SQLiteStore) Update(ctx context.Context, t *Task) error {
	if err := s.checkUsers(ctx, t); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, status=?, priority=?, author_id=?, assignee_id=?, updated_at=?
		WHERE id=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority),
		t.Author.ID, assigneeID(t), s.now(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, t.ID)
	}
	stored, err := s.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}

// Delete removes a task by ID; its comments go with it.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// List returns the page of tasks selected by q.
func (s *SQLiteStore) List(ctx context.Context, q Query) (Page[Task], error) {
	where, args := q.Filter.SQL()

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t WHERE `+where, args...).Scan(&total); err != nil {
		return Page[Task]{}, fmt.Errorf("count tasks: %w", err)
	}

	query := selectTask + ` WHERE ` + where + ` ORDER BY ` + q.Sort.SQL() + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Page.Size, q.Page.Offset())...)
	if err != nil {
		return Page[Task]{}, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return Page[Task]{}, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return Page[Task]{}, err
	}
	return NewPage(tasks, q.Page, total), nil
}

// AddComment persists c and sets its ID, CreatedAt and author email.
func (s *SQLiteStore) AddComment(ctx context.Context, c *Comment) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (text, author_id, task_id, created_at) VALUES (?,?,?,?)`,
		c.Text, c.Author.ID, c.TaskID, now,
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	if err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, c.Author.ID).Scan(&c.Author.Email); err != nil {
		return fmt.Errorf("comment author: %w", err)
	}
	return nil
}

// ListComments returns one page of a task's comments, oldest first.
func (s *SQLiteStore) ListComments(ctx context.Context, taskID int64, p PageRequest) (Page[Comment], error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE task_id = ?`, taskID).Scan(&total); err != nil {
		return Page[Comment]{}, fmt.Errorf("count comments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.text, c.author_id, u.email, c.task_id, c.created_at
		FROM comments c JOIN users u ON u.id = c.author_id
		WHERE c.task_id = ?
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT ? OFFSET ?`, taskID, p.Size, p.Offset())
	if err != nil {
		return Page[Comment]{}, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.Author.ID, &c.Author.Email, &c.TaskID, &c.CreatedAt); err != nil {
			return Page[Comment]{}, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return Page[Comment]{}, err
	}
	return NewPage(comments, p, total), nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, priority string
	var asgID sql.NullInt64
	var asgEmail sql.NullString

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority,
		&t.Author.ID, &t.Author.Email, &asgID, &asgEmail,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.Priority = Priority(priority)
	if asgID.Valid {
		t.Assignee = &UserRef{ID: asgID.Int64, Email: asgEmail.String}
	}
	return &t, nil
}
