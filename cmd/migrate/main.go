package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/config"
	"instituteos.app/internal/migrate"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	var (
		dsn      = flag.String("dsn", cfg.Database.DSN, "PostgreSQL DSN")
		email    = flag.String("email", cfg.Bootstrap.Email, "platform operator email (seed-platform)")
		password = flag.String("password", cfg.Bootstrap.Password, "platform operator password (seed-platform)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or INSTITUTEOS_DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|seed-platform]")
	}
	if logger, err := obs.NewLogger(cfg.Log.Level, "console", "instituteos-migrate"); err == nil {
		obs.SetLogger(logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, pg.Pool{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), nil)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil {
			fmt.Printf("applied %d migration(s)\n", len(applied))
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		} else if err == nil {
			fmt.Printf("rolled back %s\n", name)
		}
	case "status":
		var applied, pending []string
		if applied, err = mgr.Status(ctx); err == nil {
			pending, err = mgr.Pending(ctx)
		}
		if err == nil {
			for _, item := range applied {
				fmt.Printf("applied  %s\n", item)
			}
			for _, item := range pending {
				fmt.Printf("pending  %s\n", item)
			}
		}
	case "seed-platform":
		var user *auth.PlatformUser
		user, err = auth.NewService(store, nil).SeedPlatformUser(ctx, *email, *password, "Platform", "Admin")
		if errors.Is(err, auth.ErrConflict) {
			fmt.Printf("platform operator %s already exists\n", *email)
			err = nil
		} else if err == nil {
			fmt.Printf("seeded platform operator %s (%s)\n", user.Email, user.ID)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
