// Command countdown runs a resend cooldown in the terminal. Interrupting it
// keeps the remaining time on disk and the next run picks it up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mcdev12/finoxa/go/clients/supabase_client"
	"github.com/mcdev12/finoxa/go/internal/config"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	flow    string
	session string
	email   string
	state   string
	resend  bool
	prompt  bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	var opts options
	flag.StringVar(&opts.flow, "flow", "", "cooldown flow: signup, login or reset-password")
	flag.StringVar(&opts.session, "session", "", "session id (defaults to one derived from the current user)")
	flag.StringVar(&opts.email, "email", "", "email address to resend to")
	flag.StringVar(&opts.state, "state", "", "state file (defaults to STATE_FILE or the config value)")
	flag.BoolVar(&opts.resend, "resend", false, "resend the email when no cooldown is running")
	flag.BoolVar(&opts.prompt, "i", false, "prompt for flow and email")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "countdown: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options) error {
	if opts.prompt || opts.flow == "" {
		if err := promptOptions(&opts); err != nil {
			return err
		}
	}

	flow, err := cooldown.ParseFlow(opts.flow)
	if err != nil {
		return err
	}
	sessionID, err := sessionFor(opts.session)
	if err != nil {
		return err
	}
	statePath := opts.state
	if statePath == "" {
		statePath = cfg.Store.File
	}

	flows, err := cfg.CooldownFlows()
	if err != nil {
		return err
	}
	events := newChanPublisher(64)
	appCfg := cooldown.Config{
		Store:     kvstore.NewFileStore(statePath),
		Flows:     flows,
		Interval:  cfg.Interval,
		Publisher: events,
	}
	if cfg.Supabase.URL != "" {
		appCfg.Resender = supabase_client.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)
	}
	app, err := cooldown.NewApp(appCfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope := cooldown.Scope{SessionID: sessionID, Flow: flow}
	state, err := app.Mount(ctx, scope)
	if err != nil {
		return err
	}

	if !state.Running {
		if !opts.resend {
			fmt.Println("No cooldown running, resend is available.")
			return app.Unmount(ctx, scope)
		}
		state, err = app.Resend(ctx, scope, opts.email)
		switch {
		case errors.Is(err, cooldown.ErrResendFailed):
			fmt.Fprintf(os.Stderr, "resend failed: %v\n", err)
		case err != nil:
			return err
		default:
			fmt.Printf("Email sent to %s.\n", opts.email)
		}
	} else {
		fmt.Printf("Resuming %s cooldown for session %s.\n", flow, sessionID)
	}

	r := newRenderer(os.Stdout)
	r.remaining(state.RemainingSec)
	if err := r.follow(ctx, events.Events()); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println()
			fmt.Printf("Saved with %s left, run again to resume.\n", formatRemaining(r.lastSeen()))
			return app.Unmount(context.Background(), scope)
		}
		return err
	}
	return app.Unmount(context.Background(), scope)
}

// sessionFor parses raw, or derives a stable id for the current user so that
// reruns resume the same cooldown.
func sessionFor(raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid session id: %w", err)
		}
		return id, nil
	}
	name := "anonymous"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("finoxa-cli:"+name)), nil
}
