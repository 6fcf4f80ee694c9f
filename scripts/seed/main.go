package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/berties-books/bookshop/internal/app"
	"github.com/berties-books/bookshop/internal/audit"
	"github.com/berties-books/bookshop/internal/auth"
	"github.com/berties-books/bookshop/internal/platform/db"
	"github.com/berties-books/bookshop/internal/users"
)

var demoUsers = []auth.RegisterInput{
	{Username: "gold", First: "Gold", Last: "Smiths", Email: "gold@bertiesbooks.local", Password: "smiths-gold-1"},
	{Username: "bertie", First: "Bertie", Last: "Wooster", Email: "bertie@bertiesbooks.local", Password: "bookworm-1234"},
	{Username: "reader", First: "Avid", Last: "Reader", Email: "reader@bertiesbooks.local", Password: "pageturner-99"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying schema...")
	if err := db.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	recorder := audit.NewRecorder(audit.NewRepository(pool), logger, nil)
	hasher := auth.NewBoundedHasher(auth.NewBcryptHasher(cfg.BcryptCost), cfg.HashConcurrency)
	// Registration never touches the session store.
	service := auth.NewService(users.NewRepository(pool), hasher, nil, recorder, logger, nil)

	fmt.Println("→ Seeding users...")
	for _, in := range demoUsers {
		user, err := service.Register(ctx, in)
		switch {
		case err == nil:
			fmt.Printf("  + %s <%s>\n", user.Username, user.Email)
		case errors.Is(err, auth.ErrDuplicateUser):
			fmt.Printf("  = %s already present\n", in.Username)
		default:
			log.Fatalf("seed user %s: %v", in.Username, err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
