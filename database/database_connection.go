package database

import (
	"context"
	"os"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/princinho/lmsbackend/logger"
)

var (
	dbClient *mongo.Client
	once     sync.Once
)

func Connect() *mongo.Client {
	once.Do(func() {
		serverAPI := options.ServerAPI(options.ServerAPIVersion1)
		uri := os.Getenv("MONGODB_URI")
		opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)
		client, err := mongo.Connect(opts)
		if err != nil {
			panic(err)
		}
		if err := client.Ping(context.TODO(), readpref.Primary()); err != nil {
			panic(err)
		}
		logger.L().Info("connected to MongoDB")
		dbClient = client
	})
	return dbClient
}

func OpenCollection(collectionName string) *mongo.Collection {
	client := Connect()
	databaseName := os.Getenv("DATABASE_NAME")
	return client.Database(databaseName).Collection(collectionName)
}

// EnsureIndexes creates the unique indexes the core invariants lean on:
// one user per email, one organization per code, one document per token.
func EnsureIndexes(ctx context.Context) error {
	_, err := OpenCollection("users").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "organizationId", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = OpenCollection("organizations").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = OpenCollection("password_reset_tokens").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "used", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = OpenCollection("refresh_tokens").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tokenHash", Value: 1}},
	})
	return err
}

// TxnRunner executes a function inside a MongoDB multi-document
// transaction. The session travels in the context, so store methods
// called with the callback's ctx join the transaction transparently.
type TxnRunner struct {
	client *mongo.Client
}

func NewTxnRunner() *TxnRunner {
	return &TxnRunner{client: Connect()}
}

func (r *TxnRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
