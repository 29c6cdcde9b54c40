// Package main implements the club-admin CLI, which runs organizer actions
// against the club service directly.
//
// Usage:
//
//	go run ./cmd/tools/club-admin ship --actor=1 --season=2025 --user=42
//	go run ./cmd/tools/club-admin deliver --actor=1 --season=2025 --user=43
//	go run ./cmd/tools/club-admin kick --actor=1 --season=2025 --user=42
//	go run ./cmd/tools/club-admin ban --actor=1 --user=42
//	go run ./cmd/tools/club-admin unban --actor=1 --user=42
//	go run ./cmd/tools/club-admin allow-emails --actor=1 --user=42
//	go run ./cmd/tools/club-admin enroll --season=2025 --user=42 --fullname=... --postcode=... --address=... --country=RU
//	go run ./cmd/tools/club-admin cancel --season=2025 --user=42
//
// Every action runs in its own unit of work; notifications and emails are
// queued after commit exactly as for member requests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"giftclub/internal/app"
	"giftclub/internal/config"
	"giftclub/internal/core"
	"giftclub/internal/types"
)

// ClubActions is the part of club.Service the tool drives.
type ClubActions interface {
	Enroll(ctx context.Context, seasonID, userID int64, in types.EnrollmentInput) (*types.Participant, error)
	CancelEnrollment(ctx context.Context, seasonID, userID int64) error
	MarkShipped(ctx context.Context, actorID, seasonID, userID int64) error
	MarkDelivered(ctx context.Context, actorID, seasonID, userID int64) error
	Kick(ctx context.Context, actorID, seasonID, userID int64) error
	Ban(ctx context.Context, actorID, userID int64) error
	Unban(ctx context.Context, actorID, userID int64) error
	AllowEmails(ctx context.Context, actorID, userID int64) error
}

var errUsage = errors.New("usage")

var commands = map[string]string{
	"enroll":       "Enroll a user in a season",
	"cancel":       "Withdraw a user's enrollment while registration is open",
	"ship":         "Mark a member's gift as shipped",
	"deliver":      "Mark a member's gift as delivered",
	"kick":         "Remove a member from a season, reconnecting the ring",
	"ban":          "Ban a user from the club",
	"unban":        "Lift a ban",
	"allow-emails": "Re-enable emails for a user who unsubscribed",
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if _, ok := commands[os.Args[1]]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := core.NewLogger(os.Stderr, "info")
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = core.NewLogger(os.Stderr, cfg.LogLevel)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a.Club, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", os.Args[1], "error", err)
		a.Close()
		os.Exit(1)
	}
}

// run parses one command line and executes it against svc.
func run(ctx context.Context, svc ClubActions, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd := args[0]
	if _, ok := commands[cmd]; !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(out)
	actor := fs.Int64("actor", 0, "User id of the organizer performing the action")
	season := fs.Int64("season", 0, "Season id")
	user := fs.Int64("user", 0, "User id the action applies to")
	var in types.EnrollmentInput
	var country string
	if cmd == "enroll" {
		fs.StringVar(&in.Fullname, "fullname", "", "Recipient full name")
		fs.StringVar(&in.Postcode, "postcode", "", "Postal code")
		fs.StringVar(&in.Address, "address", "", "Postal address")
		fs.StringVar(&country, "country", "", "ISO 3166-1 alpha-2 country code")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	needActor := !slices.Contains([]string{"enroll", "cancel"}, cmd)
	needSeason := !slices.Contains([]string{"ban", "unban", "allow-emails"}, cmd)
	switch {
	case *user <= 0:
		return fmt.Errorf("%w: --user is required", errUsage)
	case needActor && *actor <= 0:
		return fmt.Errorf("%w: --actor is required", errUsage)
	case needSeason && *season <= 0:
		return fmt.Errorf("%w: --season is required", errUsage)
	}

	var err error
	switch cmd {
	case "enroll":
		if country != "" {
			in.Country = &country
		}
		var p *types.Participant
		if p, err = svc.Enroll(ctx, *season, *user, in); err == nil {
			fmt.Fprintf(out, "enrolled user %d in season %d as participant %d\n", *user, *season, p.ID)
			return nil
		}
	case "cancel":
		err = svc.CancelEnrollment(ctx, *season, *user)
	case "ship":
		err = svc.MarkShipped(ctx, *actor, *season, *user)
	case "deliver":
		err = svc.MarkDelivered(ctx, *actor, *season, *user)
	case "kick":
		err = svc.Kick(ctx, *actor, *season, *user)
	case "ban":
		err = svc.Ban(ctx, *actor, *user)
	case "unban":
		err = svc.Unban(ctx, *actor, *user)
	case "allow-emails":
		err = svc.AllowEmails(ctx, *actor, *user)
	}
	if err != nil {
		return fmt.Errorf("%s user %d: %w", cmd, *user, err)
	}
	fmt.Fprintf(out, "%s: ok (user %d)\n", cmd, *user)
	return nil
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Fprintln(w, "Usage: club-admin <command> [flags]")
	fmt.Fprintln(w, "\nCommands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-13s %s\n", name, commands[name])
	}
}
