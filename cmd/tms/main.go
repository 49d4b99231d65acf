// Command tms is the tms CLI client.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/tms/internal/version"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// errUsage is returned after usage has been printed.
var errUsage = errors.New("invalid usage")

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tms", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		serverURL = fs.String("server", envOr("TMS_SERVER", defaultServer), "tms server URL")
		token     = fs.String("token", os.Getenv("TMS_TOKEN"), "JWT auth token")
	)
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return errUsage
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Out:        stdout,
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "version":
		return cmdVersion(stdout)
	case "status":
		return cli.cmdStatus(rest)
	case "register":
		return cli.cmdCredentials("/api/auth/register", rest)
	case "login":
		return cli.cmdCredentials("/api/auth/login", rest)
	case "me":
		return cli.cmdMe(rest)
	case "tasks":
		return cli.cmdTasks(rest)
	case "task":
		return cli.cmdTask(rest)
	case "users":
		return cli.cmdUsers(rest)
	case "role":
		return cli.cmdRole(rest)
	case "events":
		return cli.cmdEvents(rest)
	case "serve":
		return fmt.Errorf("use tmsd to run the server")
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		usage(stderr)
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `tms - task management CLI

Usage:
  tms [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:8080, or $TMS_SERVER)
  --token   <token>  JWT auth token (or $TMS_TOKEN)

Commands:
  version                          print version
  status                           show server status
  register <email> <password>      create an account and print its token
  login <email> <password>         print a token
  me                               show the current principal
  tasks [-author id] [-assignee id] [-sort field,dir] [-page n] [-size n] [-all]
                                   list tasks
  task get <id>                    show a task
  task create -title t [-description d] [-status s] [-priority p] [-assignee id]
  task update <id> [-title t] [-description d] [-status s] [-priority p]
                   [-author id] [-assignee id]
  task delete <id>                 delete a task
  task comment <id> <text>         add a comment
  task comments <id>               list comments
  users                            list accounts (admin)
  role <user-id> <USER|ADMIN>      change an account role (admin)
  events [-limit n]                recent activity (admin)
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// --- version ---

func cmdVersion(w io.Writer) error {
	fmt.Fprintf(w, "tms %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}
