// Package mirror copies each ingested document set into a MongoDB
// collection for consumers that read the catalog outside the search path.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
)

// insertChunk bounds one InsertMany call.
const insertChunk = 1000

type Mirror struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func New(coll *mongo.Collection) *Mirror {
	return &Mirror{
		coll:   coll,
		logger: slog.Default().With("component", "catalog-mirror", "collection", coll.Name()),
	}
}

// EnsureIndexes creates the unique (index, id) key.
func (m *Mirror) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "index", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating mirror index: %w", err)
	}
	return nil
}

// Replace swaps the mirrored documents of index for docs. Documents keep
// their JSON field names.
func (m *Mirror) Replace(ctx context.Context, index string, docs []movie.Document) error {
	del, err := m.coll.DeleteMany(ctx, bson.M{"index": index})
	if err != nil {
		return fmt.Errorf("clearing mirror of %s: %w", index, err)
	}

	batch := make([]any, 0, insertChunk)
	inserted := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := m.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("mirroring documents of %s: %w", index, err)
		}
		inserted += len(res.InsertedIDs)
		batch = batch[:0]
		return nil
	}
	for _, d := range docs {
		rec, err := record(index, d)
		if err != nil {
			return err
		}
		batch = append(batch, rec)
		if len(batch) == insertChunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	m.logger.Info("catalog mirrored", "index", index, "deleted", del.DeletedCount, "inserted", inserted)
	return nil
}

func record(index string, d movie.Document) (bson.M, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding movie %d: %w", d.ID, err)
	}
	var rec bson.M
	if err := bson.UnmarshalExtJSON(b, false, &rec); err != nil {
		return nil, fmt.Errorf("converting movie %d: %w", d.ID, err)
	}
	rec["_id"] = fmt.Sprintf("%s:%d", index, d.ID)
	rec["index"] = index
	rec["id"] = d.ID
	return rec, nil
}
