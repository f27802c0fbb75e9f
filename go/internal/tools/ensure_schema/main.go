// Command ensure_schema creates the Postgres tables used by the sql store
// backend and the resend audit log.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mcdev12/finoxa/go/internal/dbconfig"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/mcdev12/finoxa/go/internal/resendlog"
)

func main() {
	_ = godotenv.Load()

	table := flag.String("table", kvstore.DefaultTable, "table backing the sql store")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Store table
	store, err := kvstore.NewSQLStore(db, kvstore.WithTable(*table))
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "store schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Audit table
	if err := resendlog.NewRepository(pool).EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "resend log schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Schema ready on %s: %s, resend_attempts\n", cfg.Database, *table)
}
