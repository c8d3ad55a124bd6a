// Command seed provisions demo accounts for local development. Running it
// twice is safe: existing usernames are skipped.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"ponto.dev/internal/auth"
)

type account struct {
	username   string
	password   string
	name       string
	email      string
	department string
	role       string
}

var accounts = []account{
	{"admin", "admin123", "Administrator", "admin@ponto.dev", "TI", auth.RoleAdmin},
	{"manager", "manager123", "Gerente Demo", "manager@ponto.dev", "RH", auth.RoleManager},
	{"employee", "employee123", "Funcionario Demo", "employee@ponto.dev", "Operações", auth.RoleEmployee},
}

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("PONTO_DATABASE_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PONTO_DATABASE_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGStore(db)
	for _, acc := range accounts {
		hash, err := auth.HashPassword(acc.password)
		if err != nil {
			log.Fatalf("hash password for %s: %v", acc.username, err)
		}
		user := &auth.User{
			Username:     acc.username,
			PasswordHash: hash,
			Name:         acc.name,
			Email:        acc.email,
			Department:   acc.department,
			Role:         acc.role,
		}
		err = store.Create(ctx, user)
		switch {
		case errors.Is(err, auth.ErrAlreadyExists):
			log.Printf("skip %s: already exists", acc.username)
		case err != nil:
			log.Fatalf("create %s: %v", acc.username, err)
		default:
			log.Printf("created %s (%s)", acc.username, acc.role)
		}
	}
}
