// Command feedtail follows a child's messages or timeline from the terminal.
//
//	feedtail -api http://localhost:8080/api/v1 -token $TOKEN -child c1 -resource messages
//	feedtail -child c1 -send "Picked up at 3pm"
//
// Rows already stored are printed first, then new rows as they are pushed.
// With -send the message is posted optimistically before following.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/parentrak/parentrak-backend/internal/livesync"
	"github.com/parentrak/parentrak-backend/internal/sysutil"
)

func main() {
	sysutil.LoadDotEnv()
	var (
		api      = flag.String("api", sysutil.FirstNonEmpty(os.Getenv("PARENTRAK_API"), "http://localhost:8080/api/v1"), "API base URL")
		token    = flag.String("token", os.Getenv("PARENTRAK_TOKEN"), "bearer token")
		userID   = flag.String("user", os.Getenv("PARENTRAK_USER_ID"), "your user id (to recognise your own echoes)")
		name     = flag.String("name", os.Getenv("PARENTRAK_USER_NAME"), "your display name")
		child    = flag.String("child", "", "child id")
		resource = flag.String("resource", "messages", "logs, messages or notifications")
		send     = flag.String("send", "", "post this message first")
		level    = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	lg := sysutil.SetupLogger(os.Stderr, *level, true)
	if *child == "" {
		fmt.Fprintln(os.Stderr, "feedtail: -child is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, lg, config{
		api: *api, token: *token, user: livesync.Identity{UserID: *userID, Name: *name},
		key:  livesync.Key{Resource: livesync.Resource(*resource), ChildID: *child},
		send: *send,
	}); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error().Err(err).Msg("feedtail")
		os.Exit(1)
	}
}

type config struct {
	api, token string
	user       livesync.Identity
	key        livesync.Key
	send       string
}

func run(ctx context.Context, lg zerolog.Logger, cfg config) error {
	remote := livesync.NewHTTPRemote(cfg.api, cfg.token)
	if err := remote.Probe(ctx); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}

	s := livesync.New(remote, &livesync.WSSource{BaseURL: cfg.api, Token: cfg.token}, livesync.Options{
		User: cfg.user,
		Notify: livesync.NotifierFunc(func(k livesync.Key, err error) {
			fmt.Fprintf(os.Stderr, "! %s: %v\n", k, err)
		}),
		Log: lg,
	})
	defer s.Close(context.Background())

	var mu sync.Mutex
	printed := map[string]bool{}
	s.Cache.OnChange(func(k livesync.Key, rows []livesync.Record) {
		if k != cfg.key {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, r := range rows {
			if r.IsPlaceholder() || printed[r.ID] {
				continue
			}
			printed[r.ID] = true
			fmt.Println(format(r))
		}
	})

	h, err := s.Watch(ctx, cfg.key)
	if err != nil {
		return err
	}
	defer h.Release()

	if cfg.send != "" {
		if cfg.key.Resource != livesync.ResourceMessages {
			return fmt.Errorf("-send needs -resource messages")
		}
		// Failures were already reported through the notifier.
		_, _ = s.SendMessage(ctx, cfg.key.ChildID, cfg.send)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.Done():
		return h.Err()
	}
}

func format(r livesync.Record) string {
	who := sysutil.FirstNonEmpty(r.AuthorName, r.UserID, "?")
	at := r.CreatedAt.Local().Format("Jan 2 15:04")
	switch {
	case r.Str("content") != "":
		return fmt.Sprintf("[%s] %s: %s", at, who, r.Str("content"))
	case r.Str("title") != "":
		return fmt.Sprintf("[%s] %s logged %q %s", at, who, r.Str("title"), r.Str("description"))
	}
	return fmt.Sprintf("[%s] %s", at, r.ID)
}
