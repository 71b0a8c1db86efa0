package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payments/internal/config"
	"ms-payments/internal/database/migrations"
	"ms-payments/internal/models"
)

func main() {
	var (
		dir  = flag.String("dir", "./migrations", "directory containing migration files")
		down = flag.Bool("down", false, "roll back all migrations instead of applying them")
		seed = flag.Bool("seed", false, "insert demo orders after migrating")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	opts := migrations.DefaultOptions()
	opts.MigrationsDir = *dir
	runner := migrations.NewRunner(bunDB, opts)
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("All migrations rolled back")
		return
	}

	if err := runner.RunMigrations(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("Migrations applied")

	if *seed {
		if err := seedOrders(bunDB); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		log.Println("Demo orders seeded")
	}
}

// seedOrders inserts a couple of placed orders so the API has something to
// attach payments to on a fresh database.
func seedOrders(bunDB *bun.DB) error {
	orders := []models.Order{
		{
			OrderID:     "ord_demo_1",
			ShopID:      "shop_demo",
			TotalAmount: 12900,
			Currency:    "EUR",
			Status:      models.OrderStatusPlaced,
			CreatedAt:   time.Now(),
		},
		{
			OrderID:     "ord_demo_2",
			ShopID:      "shop_demo",
			TotalAmount: 45000,
			Currency:    "EUR",
			Status:      models.OrderStatusPlaced,
			CreatedAt:   time.Now(),
		},
	}

	_, err := bunDB.NewInsert().
		Model(&orders).
		On("CONFLICT (order_id) DO NOTHING").
		Exec(context.Background())
	return err
}
