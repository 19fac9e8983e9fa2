package mirror

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/movie"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/config"
	"github.com/iambluuu/CS419-MovieTextSearch/pkg/mongo"
)

func TestRecordKeepsJSONNames(t *testing.T) {
	d := movie.Document{ID: 7, Title: "Heat", PlotSynopsis: "A heist."}
	d.Normalize()
	rec, err := record("movies", d)
	if err != nil {
		t.Fatal(err)
	}
	if rec["_id"] != "movies:7" || rec["index"] != "movies" || rec["id"] != int64(7) {
		t.Errorf("keys = %v %v %v", rec["_id"], rec["index"], rec["id"])
	}
	if rec["plot_synopsis"] != "A heist." || rec["title"] != "Heat" {
		t.Errorf("record = %v", rec)
	}
}

func TestReplace(t *testing.T) {
	uri := os.Getenv("MS_TEST_MONGO_URI")
	if uri == "" {
		t.Skipf("MS_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, config.MongoConfig{URI: uri, Database: "moviesearch_test", Collection: "movies_" + time.Now().Format("150405")})
	if err != nil {
		t.Skipf("mongo unreachable: %v", err)
	}
	defer client.Close(context.Background())
	coll := client.Collection()
	defer coll.Drop(context.Background())

	m := New(coll)
	if err := m.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	docs := []movie.Document{{ID: 1, Title: "Dune"}, {ID: 2, Title: "Arrival"}}
	if err := m.Replace(ctx, "movies", docs); err != nil {
		t.Fatal(err)
	}
	if err := m.Replace(ctx, "movies", docs[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := coll.CountDocuments(ctx, bson.M{"index": "movies"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("mirrored %d documents, want 1", n)
	}
}
