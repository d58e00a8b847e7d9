package mongo

import (
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/repository"
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const videoCollectionName = "videos"

// mongoVideoRepository implements repository.VideoRepository
type mongoVideoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoVideoRepository creates a new Video repository backed by MongoDB.
func NewMongoVideoRepository(db *mongo.Database) repository.VideoRepository {
	return &mongoVideoRepository{
		collection: db.Collection(videoCollectionName),
		now:        time.Now,
	}
}

// Put inserts a new video metadata document.
func (r *mongoVideoRepository) Put(ctx context.Context, video *domain.Video) error {
	if video.ID == "" || video.OwnerID == "" || video.StorageKey == "" {
		return errors.New("video requires id, ownerId and storageKey")
	}
	if video.UpdatedAt.IsZero() {
		video.UpdatedAt = video.UploadedAt
	}

	_, err := r.collection.InsertOne(ctx, video)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return pkgerrors.Wrapf(err, "insert video %s", video.ID)
	}
	return nil
}

// Get retrieves video metadata by its ID.
func (r *mongoVideoRepository) Get(ctx context.Context, id string) (*domain.Video, error) {
	var video domain.Video
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&video)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find video %s", id)
	}
	return &video, nil
}

// Update applies a partial update with $set and returns the document after the update.
func (r *mongoVideoRepository) Update(ctx context.Context, id string, u repository.VideoUpdate) (*domain.Video, error) {
	set := updateDocument(u, r.now().UTC())

	filter := bson.M{"_id": id}
	if u.ExpectedStatus != nil {
		filter["status"] = *u.ExpectedStatus
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var video domain.Video
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&video)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.missOrConflict(ctx, id, u)
		}
		return nil, pkgerrors.Wrapf(err, "update video %s", id)
	}
	return &video, nil
}

// missOrConflict tells an unknown id apart from a status precondition miss.
func (r *mongoVideoRepository) missOrConflict(ctx context.Context, id string, u repository.VideoUpdate) error {
	if u.ExpectedStatus == nil {
		return repository.ErrNotFound
	}
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return pkgerrors.Wrapf(err, "check video %s", id)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// updateDocument builds the $set document; metadata keys are set one by one
// so existing entries survive.
func updateDocument(u repository.VideoUpdate, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.FailureReason != nil {
		set["failureReason"] = *u.FailureReason
	}
	if u.ConfirmedAt != nil {
		set["confirmedAt"] = *u.ConfirmedAt
	}
	if u.ProcessedAt != nil {
		set["processedAt"] = *u.ProcessedAt
	}
	if u.ActualSizeBytes != nil {
		set["actualSizeBytes"] = *u.ActualSizeBytes
	}
	if u.DurationSeconds != nil {
		set["durationSeconds"] = *u.DurationSeconds
	}
	if u.FPS != nil {
		set["fps"] = *u.FPS
	}
	if u.Angle != nil {
		set["angle"] = *u.Angle
	}
	if u.Resolution != nil {
		set["resolution"] = *u.Resolution
	}
	for k, v := range u.Metadata {
		set["metadata."+k] = v
	}
	return set
}

// Query returns one page of the owner's videos, newest first.
func (r *mongoVideoRepository) Query(ctx context.Context, q repository.VideoQuery) ([]domain.Video, int64, error) {
	filter := bson.M{"ownerId": q.OwnerID}
	if q.Status != "" {
		filter["status"] = q.Status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count videos")
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "uploadedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(err, "find videos")
	}
	defer cursor.Close(ctx)

	videos := []domain.Video{}
	if err := cursor.All(ctx, &videos); err != nil {
		return nil, 0, pkgerrors.Wrap(err, "decode videos")
	}
	return videos, total, nil
}

// Delete removes the metadata document.
func (r *mongoVideoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return pkgerrors.Wrapf(err, "delete video %s", id)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureVideoIndexes creates necessary indexes for the videos collection.
func EnsureVideoIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(videoCollectionName)
	indexes := []mongo.IndexModel{
		{
			// Owner listing, newest first
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "uploadedAt", Value: -1}},
		},
		{
			// Owner listing filtered by status
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "status", Value: 1}, {Key: "uploadedAt", Value: -1}},
		},
		{
			// Exactly one record per blob
			Keys:    bson.D{{Key: "storageKey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return pkgerrors.Wrapf(err, "create indexes for %s", collection.Name())
	}
	return nil
}
