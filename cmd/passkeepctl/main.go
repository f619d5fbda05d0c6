package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"passkeep/internal/config"
	"passkeep/internal/database"
	"passkeep/internal/storage"
	"passkeep/internal/storage/postgres"
)

func main() {
	if os.Getenv("ENV") != "production" {
		_ = config.LoadDotEnvIfPresent(".env")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	dbURL, err := cfg.PostgresURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db url error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := database.OpenPostgres(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db connection error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	store := postgres.New(conn.DB())

	switch os.Args[1] {
	case "account":
		if len(os.Args) < 4 {
			usage()
			os.Exit(2)
		}
		email := strings.TrimSpace(strings.ToLower(os.Args[3]))
		switch os.Args[2] {
		case "show":
			showAccount(ctx, store, email)
		case "verify":
			markVerified(ctx, store, email)
		case "set-paid":
			setPaid(ctx, store, email, true)
		case "set-free":
			setPaid(ctx, store, email, false)
		default:
			usage()
			os.Exit(2)
		}
	case "migrate":
		migrate(ctx, conn)
	default:
		usage()
		os.Exit(2)
	}
}

func lookupAccount(ctx context.Context, store storage.AccountsStore, email string) storage.Account {
	a, err := store.GetByEmail(ctx, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get account: %v\n", err)
		os.Exit(1)
	}
	return a
}

func showAccount(ctx context.Context, store *postgres.Store, email string) {
	a := lookupAccount(ctx, store, email)

	n, err := store.CountByOwner(ctx, a.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count credentials: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("id:          %d\n", a.ID)
	fmt.Printf("email:       %s\n", a.Email)
	fmt.Printf("name:        %s\n", a.Name)
	fmt.Printf("verified:    %t\n", a.IsVerified)
	fmt.Printf("paid:        %t\n", a.IsPaid)
	fmt.Printf("credentials: %d\n", n)
	if a.LastLoginAt != nil {
		fmt.Printf("last login:  %s\n", a.LastLoginAt.UTC().Format(time.RFC3339))
	}
	fmt.Printf("created:     %s\n", a.CreatedAt.UTC().Format(time.RFC3339))
}

func markVerified(ctx context.Context, store storage.AccountsStore, email string) {
	a := lookupAccount(ctx, store, email)
	if err := store.MarkVerified(ctx, a.ID); err != nil {
		fmt.Fprintf(os.Stderr, "mark verified: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("verified")
}

func setPaid(ctx context.Context, store storage.AccountsStore, email string, paid bool) {
	a := lookupAccount(ctx, store, email)
	if err := store.SetPaid(ctx, a.ID, paid); err != nil {
		fmt.Fprintf(os.Stderr, "set paid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("paid=%t\n", paid)
}

func migrate(ctx context.Context, conn *database.Connection) {
	applied, err := database.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	for _, name := range applied {
		fmt.Println(name)
	}
	fmt.Printf("%d applied\n", len(applied))
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  passkeepctl account show <email>")
	fmt.Fprintln(os.Stderr, "  passkeepctl account verify <email>")
	fmt.Fprintln(os.Stderr, "  passkeepctl account set-paid <email>")
	fmt.Fprintln(os.Stderr, "  passkeepctl account set-free <email>")
	fmt.Fprintln(os.Stderr, "  passkeepctl migrate")
}
