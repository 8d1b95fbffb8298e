package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/mohitnawani/taskdeck/pkg/client"
)

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout(args)
	case "whoami":
		err = commandWhoami(args)
	case "profile":
		err = commandProfile(args)
	case "passwd":
		err = commandPasswd(args)
	case "list":
		err = commandList(args)
	case "create":
		err = commandCreate(args)
	case "show":
		err = commandShow(args)
	case "update":
		err = commandUpdate(args)
	case "delete":
		err = commandDelete(args)
	case "stats":
		err = commandStats(args)
	case "search":
		err = commandSearch(args)
	case "watch":
		err = commandWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("taskctl %s\n", buildVersion)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`taskctl - task management from the terminal

Usage:
  taskctl <command> [flags]

Account:
  register    Create an account and sign in
  login       Sign in with email and password
  logout      Discard the stored session token
  whoami      Show the authenticated identity
  profile     Show or update name and bio
  passwd      Change the account password

Tasks:
  list        List tasks with filters and paging
  create      Create a task
  show        Show one task
  update      Update fields on a task
  delete      Delete a task
  stats       Show status and priority counts
  search      Interactive search (debounced as you type)
  watch       Stream live task changes

Other:
  version     Print version
  help        Print this help

The API base URL comes from --api or the TASKDECK_API environment variable.`)
}

func newSession(apiBase string) (*apiclient.Session, *apiclient.Client, error) {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = os.Getenv("TASKDECK_API")
	}
	cli, err := apiclient.New(base)
	if err != nil {
		return nil, nil, err
	}
	store, err := apiclient.NewFileTokenStore("taskdeck")
	if err != nil {
		return nil, nil, err
	}
	return apiclient.NewSession(cli, store), cli, nil
}

func authedSession(ctx context.Context, apiBase string) (*apiclient.Session, *apiclient.Client, string, error) {
	session, cli, err := newSession(apiBase)
	if err != nil {
		return nil, nil, "", err
	}
	if err := session.Init(ctx); err != nil {
		return nil, nil, "", err
	}
	token, err := session.Token()
	if err != nil {
		return nil, nil, "", errors.New("not logged in (run: taskctl login)")
	}
	return session, cli, token, nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret := *password
	if secret == "" {
		var err error
		if secret, err = readPassword("Password: "); err != nil {
			return err
		}
	}

	session, _, err := newSession(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := session.Init(ctx); err != nil {
		return err
	}
	account, err := session.Register(ctx, *name, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("registered as %s <%s>\n", account.Name, account.Email)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret := *password
	if secret == "" {
		var err error
		if secret, err = readPassword("Password: "); err != nil {
			return err
		}
	}

	session, _, err := newSession(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := session.Init(ctx); err != nil {
		return err
	}
	account, err := session.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s <%s>\n", account.Name, account.Email)
	return nil
}

func commandLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	session, _, err := newSession(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_ = session.Init(ctx)
	if err := session.Logout(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	session, _, _, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	account, ok := session.User()
	if !ok {
		return errors.New("not logged in")
	}
	fmt.Printf("%s <%s> (%s)\n", account.Name, account.Email, account.Role)
	return nil
}

func commandProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "New display name")
	bio := fs.String("bio", "", "New bio")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}

	var namePtr, bioPtr *string
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			namePtr = name
		case "bio":
			bioPtr = bio
		}
	})
	if namePtr == nil && bioPtr == nil {
		account, err := cli.Profile(ctx, token)
		if err != nil {
			return err
		}
		fmt.Printf("name:  %s\nemail: %s\nbio:   %s\n", account.Name, account.Email, account.Bio)
		return nil
	}
	account, err := cli.UpdateProfile(ctx, token, namePtr, bioPtr)
	if err != nil {
		return err
	}
	fmt.Printf("profile updated: %s\n", account.Name)
	return nil
}

func commandPasswd(args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	current, err := readPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := readPassword("New password: ")
	if err != nil {
		return err
	}
	if err := cli.ChangePassword(ctx, token, current, next); err != nil {
		return err
	}
	fmt.Println("password updated")
	return nil
}

func commandList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (todo|in-progress|done)")
	priority := fs.String("priority", "", "Filter by priority (low|medium|high)")
	search := fs.String("search", "", "Free-text search")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", 10, "Page size (1-100)")
	sortBy := fs.String("sort", "createdAt", "Sort field (createdAt|dueDate|priority|title)")
	order := fs.String("order", "desc", "Sort direction (asc|desc)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	result, err := cli.ListTasks(ctx, token, apiclient.ListOptions{
		Status:   *status,
		Priority: *priority,
		Search:   *search,
		Page:     *page,
		Limit:    *limit,
		SortBy:   *sortBy,
		Order:    *order,
	})
	if err != nil {
		return err
	}
	printTaskPage(result)
	return nil
}

func printTaskPage(page apiclient.TaskPage) {
	if page.Total == 0 {
		fmt.Println("no tasks found")
		return
	}
	for _, t := range page.Tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("2006-01-02 15:04")
		}
		tags := "-"
		if len(t.Tags) > 0 {
			tags = strings.Join(t.Tags, ",")
		}
		fmt.Printf("%s  [%-11s] [%-6s] due:%s tags:%s  %s\n", t.ID, t.Status, t.Priority, due, tags, t.Title)
	}
	fmt.Printf("page %d/%d (%d tasks total)\n", page.Page, page.Pages, page.Total)
}

func commandCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "Task title (required)")
	description := fs.String("description", "", "Task description")
	status := fs.String("status", "", "Initial status (default todo)")
	priority := fs.String("priority", "", "Priority (default medium)")
	due := fs.String("due", "", "Due date, RFC3339 (e.g. 2026-09-01T17:00:00Z)")
	tags := fs.String("tags", "", "Comma-separated tags (max 5)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*title) == "" {
		return errors.New("--title is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	in := apiclient.CreateTaskInput{
		Title:       *title,
		Description: *description,
		Status:      *status,
		Priority:    *priority,
		DueDate:     *due,
	}
	if trimmed := strings.TrimSpace(*tags); trimmed != "" {
		in.Tags = strings.Split(trimmed, ",")
	}
	created, err := cli.CreateTask(ctx, token, in)
	if err != nil {
		return err
	}
	fmt.Printf("created task %s\n", created.ID)
	return nil
}

func commandShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: taskctl show <task-id>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	t, err := cli.GetTask(ctx, token, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("id:          %s\ntitle:       %s\nstatus:      %s\npriority:    %s\n", t.ID, t.Title, t.Status, t.Priority)
	if t.Description != "" {
		fmt.Printf("description: %s\n", t.Description)
	}
	if t.DueDate != nil {
		fmt.Printf("due:         %s\n", t.DueDate.Local().Format(time.RFC1123))
	}
	if len(t.Tags) > 0 {
		fmt.Printf("tags:        %s\n", strings.Join(t.Tags, ", "))
	}
	fmt.Printf("created:     %s\nupdated:     %s\n", t.CreatedAt.Local().Format(time.RFC1123), t.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

func commandUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	title := fs.String("title", "", "New title")
	description := fs.String("description", "", "New description")
	status := fs.String("status", "", "New status")
	priority := fs.String("priority", "", "New priority")
	due := fs.String("due", "", "New due date, RFC3339")
	tags := fs.String("tags", "", "Comma-separated tags")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: taskctl update <task-id> [flags]")
	}

	var in apiclient.UpdateTaskInput
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			in.Title = title
		case "description":
			in.Description = description
		case "status":
			in.Status = status
		case "priority":
			in.Priority = priority
		case "due":
			in.DueDate = due
		case "tags":
			parts := strings.Split(*tags, ",")
			in.Tags = &parts
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	updated, err := cli.UpdateTask(ctx, token, fs.Arg(0), in)
	if err != nil {
		return err
	}
	fmt.Printf("updated task %s (status %s)\n", updated.ID, updated.Status)
	return nil
}

func commandDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: taskctl delete <task-id>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	if err := cli.DeleteTask(ctx, token, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("task deleted")
	return nil
}

func commandStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	stats, err := cli.Stats(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("status:   todo=%d in-progress=%d done=%d total=%d\n",
		stats.Status.Todo, stats.Status.InProgress, stats.Status.Done, stats.Status.Total)
	fmt.Printf("priority: low=%d medium=%d high=%d\n",
		stats.Priority.Low, stats.Priority.Medium, stats.Priority.High)
	return nil
}

// commandSearch runs an interactive loop: every line typed narrows the task
// list, with requests debounced so a burst of edits issues a single call.
func commandSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}

	debouncer := apiclient.NewDebouncer(apiclient.DefaultSearchDebounce)
	defer debouncer.Stop()

	fmt.Println("type to search, empty line lists everything, ctrl-d quits")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		debouncer.Trigger(func() {
			reqCtx, reqCancel := context.WithTimeout(ctx, requestTimeout)
			defer reqCancel()
			result, err := cli.ListTasks(reqCtx, token, apiclient.ListOptions{Search: query})
			if err != nil {
				fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
				return
			}
			printTaskPage(result)
		})
	}
	return scanner.Err()
}

func commandWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, cli, token, err := authedSession(ctx, *apiBase)
	if err != nil {
		return err
	}
	fmt.Println("watching task changes, ctrl-c quits")
	return cli.WatchTasks(ctx, token, func(event apiclient.TaskEvent) {
		switch event.Type {
		case "stream.connected":
			fmt.Println("stream connected")
		case "task.deleted":
			fmt.Printf("%s  %s\n", event.Type, event.Task.ID)
		default:
			fmt.Printf("%s  %s  [%s] %s\n", event.Type, event.Task.ID, event.Task.Status, event.Task.Title)
		}
	})
}
