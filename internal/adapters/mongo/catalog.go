package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository serves concert and performer metadata. Seat inventory lives in CockroachDB.
type CatalogRepository struct {
	coll       *mongo.Collection
	performers *mongo.Collection
	logger     observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:       db.Collection("concerts"),
		performers: db.Collection("performers"),
		logger:     logger,
	}
}

type ConcertDoc struct {
	ID           int64       `bson:"_id"`
	Title        string      `bson:"title"`
	ImageName    string      `bson:"image_name"`
	Blurb        string      `bson:"blurb"`
	Dates        []time.Time `bson:"dates"`
	PerformerIDs []int64     `bson:"performer_ids"`
	UpdatedAt    time.Time   `bson:"updated_at"`
}

func (d ConcertDoc) toDomain() domain.Concert {
	dates := make([]time.Time, len(d.Dates))
	for i, t := range d.Dates {
		dates[i] = t.UTC()
	}
	return domain.Concert{
		ID:           d.ID,
		Title:        d.Title,
		ImageName:    d.ImageName,
		Blurb:        d.Blurb,
		Dates:        dates,
		PerformerIDs: d.PerformerIDs,
	}
}

func (c *CatalogRepository) FindConcert(ctx context.Context, id int64) (domain.Concert, error) {
	var doc ConcertDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Concert{}, errors.Wrapf(domain.ErrNotFound, "concert %d", id)
	}
	if err != nil {
		c.logger.WithError(err).WithField("concert_id", id).Error("failed to get concert")
		return domain.Concert{}, errors.Wrap(err, "find concert")
	}
	return doc.toDomain(), nil
}

func (c *CatalogRepository) ListConcerts(ctx context.Context) ([]domain.Concert, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		c.logger.WithError(err).Error("failed to list concerts")
		return nil, errors.Wrap(err, "list concerts")
	}
	var docs []ConcertDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode concerts")
	}
	out := make([]domain.Concert, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// SaveConcert inserts or replaces a concert by id.
func (c *CatalogRepository) SaveConcert(ctx context.Context, concert domain.Concert) error {
	doc := ConcertDoc{
		ID:           concert.ID,
		Title:        concert.Title,
		ImageName:    concert.ImageName,
		Blurb:        concert.Blurb,
		Dates:        concert.Dates,
		PerformerIDs: concert.PerformerIDs,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": concert.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("concert_id", concert.ID).Error("failed to save concert")
		return errors.Wrap(err, "save concert")
	}
	return nil
}

type PerformerDoc struct {
	ID        int64     `bson:"_id"`
	Name      string    `bson:"name"`
	ImageName string    `bson:"image_name"`
	Genre     string    `bson:"genre"`
	Blurb     string    `bson:"blurb"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d PerformerDoc) toDomain() domain.Performer {
	return domain.Performer{ID: d.ID, Name: d.Name, ImageName: d.ImageName, Genre: d.Genre, Blurb: d.Blurb}
}

func (c *CatalogRepository) FindPerformer(ctx context.Context, id int64) (domain.Performer, error) {
	var doc PerformerDoc
	err := c.performers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Performer{}, errors.Wrapf(domain.ErrNotFound, "performer %d", id)
	}
	if err != nil {
		c.logger.WithError(err).WithField("performer_id", id).Error("failed to get performer")
		return domain.Performer{}, errors.Wrap(err, "find performer")
	}
	return doc.toDomain(), nil
}

func (c *CatalogRepository) ListPerformers(ctx context.Context) ([]domain.Performer, error) {
	cur, err := c.performers.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		c.logger.WithError(err).Error("failed to list performers")
		return nil, errors.Wrap(err, "list performers")
	}
	var docs []PerformerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode performers")
	}
	out := make([]domain.Performer, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (c *CatalogRepository) SavePerformer(ctx context.Context, p domain.Performer) error {
	doc := PerformerDoc{
		ID:        p.ID,
		Name:      p.Name,
		ImageName: p.ImageName,
		Genre:     p.Genre,
		Blurb:     p.Blurb,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := c.performers.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("performer_id", p.ID).Error("failed to save performer")
		return errors.Wrap(err, "save performer")
	}
	return nil
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
