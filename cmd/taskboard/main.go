// taskboard is a terminal client for a taskgate gateway. It keeps a local
// board in step with the server and applies drags optimistically.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/gosuda/taskgate/internal/board"
	"github.com/gosuda/taskgate/internal/client"
	"github.com/gosuda/taskgate/internal/domain"
)

type options struct {
	server   string
	email    string
	password string
	token    string
	yes      bool
	verbose  bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("taskboard", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("TASKBOARD_SERVER", "http://localhost:8080"), "gateway base URL")
	flagSet.StringVarP(&opts.email, "email", "e", os.Getenv("TASKBOARD_EMAIL"), "login email")
	flagSet.StringVar(&opts.password, "password", os.Getenv("TASKBOARD_PASSWORD"), "login password")
	flagSet.StringVar(&opts.token, "token", os.Getenv("TASKBOARD_TOKEN"), "access token (skips login)")
	flagSet.BoolVarP(&opts.yes, "yes", "y", false, "confirm archive/delete without prompting")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := connect(ctx, opts)
	if err != nil {
		return err
	}

	var confirm board.Confirmer = prompt{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	if opts.yes {
		confirm = board.ConfirmFunc(func(context.Context, board.DropTarget, *domain.Task) bool { return true })
	}
	r := board.New(c, confirm)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "list":
		if err := r.Load(ctx); err != nil {
			return err
		}
		printBoard(os.Stdout, r.View())
		return nil
	case "add":
		if len(cmdArgs) < 1 {
			return errors.New("usage: taskboard add <title> [status]")
		}
		var status domain.TaskStatus
		if len(cmdArgs) > 1 {
			status = domain.TaskStatus(strings.ToUpper(cmdArgs[1]))
		}
		t, err := c.CreateTask(ctx, cmdArgs[0], "", status)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created %s in %s\n", t.ID, t.Status)
		return nil
	case "move":
		return runMove(ctx, r, cmdArgs)
	case "archive":
		return runDrop(ctx, r, cmdArgs, board.DropArchive)
	case "delete":
		return runDrop(ctx, r, cmdArgs, board.DropDelete)
	case "watch":
		return runWatch(ctx, c, r)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func connect(ctx context.Context, opts options) (*client.Client, error) {
	c, err := client.New(opts.server, nil)
	if err != nil {
		return nil, err
	}
	if opts.token != "" {
		c.SetToken(opts.token)
		return c, nil
	}
	if opts.email == "" || opts.password == "" {
		return nil, errors.New("set --email and --password (or --token)")
	}
	user, err := c.Login(ctx, opts.email, opts.password)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("user_id", user.ID.String()).Msg("logged in")
	return c, nil
}

func runMove(ctx context.Context, r *board.Reconciler, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: taskboard move <task-id> <status> <index>")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	if err := r.Load(ctx); err != nil {
		return err
	}
	moveErr := r.Move(ctx, id, domain.TaskStatus(strings.ToUpper(args[1])), index)
	printBoard(os.Stdout, r.View())
	return moveErr
}

func runDrop(ctx context.Context, r *board.Reconciler, args []string, target board.DropTarget) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskboard %s <task-id>", target)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}

	if err := r.Load(ctx); err != nil {
		return err
	}
	confirmed, err := r.Drop(ctx, id, target)
	if err != nil {
		return err
	}
	if !confirmed {
		fmt.Fprintln(os.Stdout, "cancelled")
		return nil
	}
	printBoard(os.Stdout, r.View())
	return nil
}

// runWatch prints the board whenever it changes until interrupted.
func runWatch(ctx context.Context, c *client.Client, r *board.Reconciler) error {
	if err := r.Load(ctx); err != nil {
		return err
	}

	stream, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	joined := make(map[uuid.UUID]bool)
	join := func(v board.View) {
		for _, status := range domain.TaskStatuses {
			for _, id := range v.IDs(status) {
				if joined[id] {
					continue
				}
				if err := stream.JoinTask(ctx, id); err != nil {
					log.Warn().Err(err).Str("task_id", id.String()).Msg("join failed")
					continue
				}
				joined[id] = true
			}
		}
	}

	view := r.View()
	join(view)
	printBoard(os.Stdout, view)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return fmt.Errorf("stream closed: %w", stream.Err())
			}
			switch ev.Name {
			case domain.EventTaskUpdate:
				te, err := ev.TaskEvent()
				if err != nil {
					log.Warn().Err(err).Msg("bad taskUpdate")
					continue
				}
				r.Apply(te)
				view := r.View()
				join(view)
				printBoard(os.Stdout, view)
			case domain.EventNotification:
				n, err := ev.Notification()
				if err != nil {
					log.Warn().Err(err).Msg("bad notification")
					continue
				}
				fmt.Fprintf(os.Stdout, "! %s\n", n.Message)
			case domain.EventError:
				fmt.Fprintf(os.Stderr, "server error: %s\n", ev.Data)
			}
		}
	}
}

// prompt asks on the terminal before a task leaves the board.
type prompt struct {
	in  *bufio.Reader
	out io.Writer
}

func (p prompt) Confirm(_ context.Context, target board.DropTarget, task *domain.Task) bool {
	fmt.Fprintf(p.out, "%s %q? [y/N] ", target, task.Title)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printBoard(w io.Writer, v board.View) {
	for _, status := range domain.TaskStatuses {
		fmt.Fprintf(w, "%s (%d)\n", status, len(v[status]))
		for _, t := range v[status] {
			fmt.Fprintf(w, "  %2d  %s  %s\n", t.Order, t.ID, t.Title)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `taskboard is a terminal client for a taskgate gateway.

Usage:
  taskboard [flags] <command> [args]

Commands:
  list                            print the board
  add <title> [status]            create a task
  move <task-id> <status> <index> drag a task to a column position
  archive <task-id>               archive a task (asks first)
  delete <task-id>                delete a task (asks first)
  watch                           follow live updates

Flags:
%s`, flagSet.FlagUsages())
}
