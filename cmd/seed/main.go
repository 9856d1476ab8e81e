// Command seed loads a demo concert, its seat inventory and test users.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/concert-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/concert-booking/internal/adapters/mongo"
	"github.com/robertarktes/concert-booking/internal/config"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/identity"
	"github.com/robertarktes/concert-booking/internal/observability"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var rowPrices = map[byte]string{
	'A': "120.00", 'B': "120.00",
	'C': "90.00", 'D': "90.00", 'E': "90.00",
	'F': "60.00", 'G': "60.00", 'H': "60.00",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(ctx)
	catalog := mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDB), logger)

	dates := []time.Time{
		time.Date(2020, 2, 15, 20, 0, 0, 0, time.UTC),
		time.Date(2020, 2, 16, 20, 0, 0, 0, time.UTC),
	}
	concert := domain.Concert{
		ID:           1,
		Title:        "PTX",
		ImageName:    "ptx.jpg",
		Blurb:        "A cappella group Pentatonix on their world tour.",
		Dates:        dates,
		PerformerIDs: []int64{1},
	}
	if err := catalog.SaveConcert(ctx, concert); err != nil {
		log.Fatalf("failed to save concert: %v", err)
	}
	performer := domain.Performer{
		ID:        1,
		Name:      "Pentatonix",
		ImageName: "ptx.jpg",
		Genre:     "A cappella",
		Blurb:     "Five-piece vocal group from Arlington, Texas.",
	}
	if err := catalog.SavePerformer(ctx, performer); err != nil {
		log.Fatalf("failed to save performer: %v", err)
	}

	for _, date := range dates {
		var seats []domain.Seat
		for row, price := range rowPrices {
			for n := 1; n <= 15; n++ {
				seats = append(seats, domain.Seat{
					Label: fmt.Sprintf("%c%d", row, n),
					Price: decimal.RequireFromString(price),
					Date:  date,
				})
			}
		}
		if err := repo.CreateSeats(ctx, seats); err != nil {
			log.Fatalf("failed to create seats: %v", err)
		}
	}

	for i := int64(1); i <= 3; i++ {
		hash, err := identity.HashPassword("pa55word")
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		u := domain.User{ID: i, Username: fmt.Sprintf("testuser%d", i), PasswordHash: hash}
		if err := repo.CreateUser(ctx, u); err != nil {
			log.Fatalf("failed to create user: %v", err)
		}
	}
	logger.WithField("concerts", 1).WithField("dates", len(dates)).Info("seed complete")
}
