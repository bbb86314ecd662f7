package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gymstudio.app/internal/auth"
	"gymstudio.app/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("STUDIO_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Path to SQL migrations (default: embedded schema)")
		seedsPath      = flag.String("seeds", "", "Path to SQL seeds")
		adminEmail     = flag.String("admin-email", os.Getenv("STUDIO_ADMIN_EMAIL"), "Email of the bootstrap admin")
		adminPassword  = flag.String("admin-password", os.Getenv("STUDIO_ADMIN_PASSWORD"), "Password of the bootstrap admin")
		adminName      = flag.String("admin-name", "Studio Admin", "Display name of the bootstrap admin")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or STUDIO_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|pending|admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var migrations fs.FS
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(db, migrations, opts...)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "pending":
		var pending []string
		pending, err = mgr.Pending(ctx)
		if err == nil {
			for _, item := range pending {
				fmt.Println(item)
			}
		}
	case "admin":
		err = bootstrapAdmin(ctx, auth.NewPGAccounts(db), *adminEmail, *adminPassword, *adminName)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapAdmin creates the first admin account. Running it again is a no-op.
func bootstrapAdmin(ctx context.Context, accounts auth.Accounts, email, password, name string) error {
	if email == "" || password == "" {
		return errors.New("admin email and password are required")
	}
	acc, err := accounts.CreateAccount(ctx, email, password, auth.AccountMetadata{Role: auth.RoleAdmin, FullName: name})
	if errors.Is(err, auth.ErrAlreadyExists) {
		existing, lookupErr := accounts.LookupByEmail(ctx, email)
		if lookupErr != nil {
			return lookupErr
		}
		if existing.Role != auth.RoleAdmin {
			return fmt.Errorf("account %s exists with role %q", email, existing.Role)
		}
		fmt.Println("admin already exists:", existing.ID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("created admin:", acc.ID)
	return nil
}
