package docstore

import (
	"context"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore implements Store on MongoDB. The document key doubles as
// _id so replays replace rather than duplicate.
type MongoStore struct {
	client   *mongo.Client
	database string
}

// NewMongo connects to MongoDB at the given URI.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "docstore: connect mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "docstore: ping mongo")
	}
	return &MongoStore{client: client, database: database}, nil
}

func (s *MongoStore) UpsertDocument(ctx context.Context, collection, key string, doc map[string]any) (bool, error) {
	payload := bson.M{"_id": key}
	for k, v := range doc {
		payload[k] = v
	}

	res, err := s.client.Database(s.database).Collection(collection).ReplaceOne(
		ctx,
		bson.M{"_id": key},
		payload,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return false, eris.Wrapf(err, "docstore: upsert document %s/%s", collection, key)
	}
	return res.UpsertedCount > 0, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.client.Ping(ctx, readpref.Primary()), "docstore: ping mongo")
}

func (s *MongoStore) Close(ctx context.Context) error {
	return eris.Wrap(s.client.Disconnect(ctx), "docstore: disconnect mongo")
}
