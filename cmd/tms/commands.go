package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
	"github.com/GoCodeAlone/tms/task"
	"github.com/GoCodeAlone/tms/user"
)

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "status:  %s\n", result["status"])
	fmt.Fprintf(c.Out, "version: %s\n", result["version"])
	return nil
}

// --- auth ---

func (c *Client) cmdCredentials(path string, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: tms register|login <email> <password>")
	}
	var result struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": args[0], "password": args[1]}
	if err := c.post(path, body, &result); err != nil {
		return err
	}
	fmt.Fprintln(c.Out, result.Token)
	return nil
}

func (c *Client) cmdMe(_ []string) error {
	var p auth.Principal
	if err := c.get("/api/auth/me", &p); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "id:    %d\nemail: %s\nrole:  %s\n", p.ID, p.Identity, p.Role)
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		author   = fs.Int64("author", 0, "filter by author id")
		assignee = fs.Int64("assignee", 0, "filter by assignee id")
		page     = fs.Int("page", 0, "page number, from 0")
		size     = fs.Int("size", 0, "page size")
		all      = fs.Bool("all", false, "list every task (admin)")
	)
	var sorts []string
	fs.Func("sort", "field,direction (repeatable)", func(s string) error {
		sorts = append(sorts, s)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}

	q := url.Values{}
	if *author > 0 {
		q.Set("authorId", strconv.FormatInt(*author, 10))
	}
	if *assignee > 0 {
		q.Set("assigneeId", strconv.FormatInt(*assignee, 10))
	}
	if *page > 0 {
		q.Set("page", strconv.Itoa(*page))
	}
	if *size > 0 {
		q.Set("size", strconv.Itoa(*size))
	}
	for _, s := range sorts {
		q.Add("sort", s)
	}
	path := "/api/tasks"
	if *all {
		if *author > 0 || *assignee > 0 {
			return errors.New("tasks: -all cannot be combined with filters")
		}
		path = "/api/tasks/all"
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result task.Page[task.Task]
	if err := c.get(path, &result); err != nil {
		return err
	}
	if len(result.Content) == 0 {
		fmt.Fprintln(c.Out, "no tasks")
		return nil
	}
	fmt.Fprintf(c.Out, "%-6s %-30s %-12s %-8s %-24s %-24s\n", "ID", "TITLE", "STATUS", "PRIORITY", "AUTHOR", "ASSIGNEE")
	fmt.Fprintln(c.Out, strings.Repeat("-", 109))
	for _, t := range result.Content {
		fmt.Fprintf(c.Out, "%-6d %-30s %-12s %-8s %-24s %-24s\n",
			t.ID,
			truncate(t.Title, 29),
			t.Status,
			t.Priority,
			truncate(t.Author.Email, 23),
			truncate(assigneeEmail(&t), 23),
		)
	}
	fmt.Fprintf(c.Out, "page %d of %d (%d tasks)\n", result.Page+1, max(result.TotalPages, 1), result.TotalElements)
	return nil
}

// --- task subcommands ---

func (c *Client) cmdTask(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: tms task <get|create|update|delete|comment|comments> ...")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "get":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		var t task.Task
		if err := c.get("/api/tasks/"+id, &t); err != nil {
			return err
		}
		c.printTask(&t)
	case "create":
		cs, err := parseChangeSet("create", rest, false)
		if err != nil {
			return err
		}
		if cs.Title == nil {
			return errors.New("usage: tms task create -title <title> [flags]")
		}
		var t task.Task
		if err := c.post("/api/tasks", cs, &t); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "created task %d\n", t.ID)
	case "update":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		cs, err := parseChangeSet("update", rest[1:], true)
		if err != nil {
			return err
		}
		var t task.Task
		if err := c.do(http.MethodPatch, "/api/tasks/"+id, cs, &t); err != nil {
			return err
		}
		c.printTask(&t)
	case "delete":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		if err := c.do(http.MethodDelete, "/api/tasks/"+id, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "deleted task %s\n", id)
	case "comment":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		if len(rest) < 2 {
			return errors.New("usage: tms task comment <id> <text>")
		}
		var cm task.Comment
		body := map[string]string{"text": strings.Join(rest[1:], " ")}
		if err := c.post("/api/tasks/"+id+"/comments", body, &cm); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "added comment %d\n", cm.ID)
	case "comments":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		var result task.Page[task.Comment]
		if err := c.get("/api/tasks/"+id+"/comments?size="+strconv.Itoa(task.MaxPageSize), &result); err != nil {
			return err
		}
		if len(result.Content) == 0 {
			fmt.Fprintln(c.Out, "no comments")
			return nil
		}
		for _, cm := range result.Content {
			fmt.Fprintf(c.Out, "[%s] %s: %s\n", humanize.Time(cm.CreatedAt), cm.Author.Email, cm.Text)
		}
	default:
		return fmt.Errorf("unknown task subcommand: %s", sub)
	}
	return nil
}

// parseChangeSet builds a change set from flags. Only flags that were given
// are set, so an update leaves the rest of the task unchanged.
func parseChangeSet(name string, args []string, withAuthor bool) (task.ChangeSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	title := fs.String("title", "", "title")
	description := fs.String("description", "", "description")
	status := fs.String("status", "", "PENDING, IN_PROGRESS or COMPLETED")
	priority := fs.String("priority", "", "HIGH, MEDIUM or LOW")
	assignee := fs.Int64("assignee", 0, "assignee user id")
	var author *int64
	if withAuthor {
		author = fs.Int64("author", 0, "author user id")
	}
	if err := fs.Parse(args); err != nil {
		return task.ChangeSet{}, fmt.Errorf("%s: %w", name, err)
	}

	var cs task.ChangeSet
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			cs.Title = title
		case "description":
			cs.Description = description
		case "status":
			s := task.Status(strings.ToUpper(*status))
			cs.Status = &s
		case "priority":
			p := task.Priority(strings.ToUpper(*priority))
			cs.Priority = &p
		case "assignee":
			cs.Assignee = &task.UserRef{ID: *assignee}
		case "author":
			cs.Author = &task.UserRef{ID: *author}
		}
	})
	if fs.NArg() > 0 {
		return task.ChangeSet{}, fmt.Errorf("%s: unexpected argument %q", name, fs.Arg(0))
	}
	return cs, nil
}

func taskID(args []string) (string, error) {
	if len(args) < 1 {
		return "", errors.New("missing task id")
	}
	if id, err := strconv.ParseInt(args[0], 10, 64); err != nil || id <= 0 {
		return "", fmt.Errorf("invalid task id %q", args[0])
	}
	return args[0], nil
}

func (c *Client) printTask(t *task.Task) {
	fmt.Fprintf(c.Out, "id:          %d\n", t.ID)
	fmt.Fprintf(c.Out, "title:       %s\n", t.Title)
	fmt.Fprintf(c.Out, "status:      %s\n", t.Status)
	fmt.Fprintf(c.Out, "priority:    %s\n", t.Priority)
	fmt.Fprintf(c.Out, "author:      %s\n", t.Author.Email)
	fmt.Fprintf(c.Out, "assignee:    %s\n", assigneeEmail(t))
	fmt.Fprintf(c.Out, "updated:     %s\n", humanize.Time(t.UpdatedAt))
	if t.Description != "" {
		fmt.Fprintf(c.Out, "\n%s\n", t.Description)
	}
}

// --- admin ---

func (c *Client) cmdUsers(_ []string) error {
	var users []user.User
	if err := c.get("/api/admin/users", &users); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%-6s %-32s %-6s %s\n", "ID", "EMAIL", "ROLE", "JOINED")
	fmt.Fprintln(c.Out, strings.Repeat("-", 60))
	for _, u := range users {
		fmt.Fprintf(c.Out, "%-6d %-32s %-6s %s\n", u.ID, truncate(u.Email, 31), u.Role, humanize.Time(u.CreatedAt))
	}
	return nil
}

func (c *Client) cmdRole(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: tms role <user-id> <USER|ADMIN>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	role, err := auth.ParseRole(strings.ToUpper(args[1]))
	if err != nil {
		return err
	}
	var u user.User
	if err := c.do(http.MethodPut, "/api/admin/users/"+args[0]+"/role", map[string]auth.Role{"role": role}, &u); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s is now %s\n", u.Email, u.Role)
	return nil
}

func (c *Client) cmdEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "number of events")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	var events []comms.Event
	if err := c.get("/api/admin/events?limit="+strconv.Itoa(*limit), &events); err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintf(c.Out, "%-14s task %-6d by %-6d %s (%s)\n",
			ev.Type, ev.TaskID, ev.ActorID, truncate(ev.Summary, 40), ev.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// --- helpers ---

func assigneeEmail(t *task.Task) string {
	if t.Assignee == nil {
		return "-"
	}
	if t.Assignee.Email == "" {
		return "#" + strconv.FormatInt(t.Assignee.ID, 10)
	}
	return t.Assignee.Email
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
