// Package dynamo stores video metadata in a DynamoDB table keyed by id, with
// a global secondary index on (ownerId, uploadedAt) for listing.
package dynamo

import (
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/repository"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	pkgerrors "github.com/pkg/errors"
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// videoItem is the DynamoDB item layout. Timestamps are unix millis so the
// owner index sorts numerically.
type videoItem struct {
	ID                string            `dynamodbav:"id"`
	OwnerID           string            `dynamodbav:"ownerId"`
	OriginalFilename  string            `dynamodbav:"originalFilename"`
	ContentType       string            `dynamodbav:"contentType"`
	DeclaredSizeBytes int64             `dynamodbav:"declaredSizeBytes"`
	ActualSizeBytes   int64             `dynamodbav:"actualSizeBytes,omitempty"`
	StorageKey        string            `dynamodbav:"storageKey"`
	Status            string            `dynamodbav:"status"`
	FailureReason     string            `dynamodbav:"failureReason,omitempty"`
	UploadedAt        int64             `dynamodbav:"uploadedAt"`
	ConfirmedAt       *int64            `dynamodbav:"confirmedAt,omitempty"`
	ProcessedAt       *int64            `dynamodbav:"processedAt,omitempty"`
	UpdatedAt         int64             `dynamodbav:"updatedAt"`
	DurationSeconds   *float64          `dynamodbav:"durationSeconds,omitempty"`
	FPS               *float64          `dynamodbav:"fps,omitempty"`
	Angle             *string           `dynamodbav:"angle,omitempty"`
	Resolution        *string           `dynamodbav:"resolution,omitempty"`
	Metadata          map[string]string `dynamodbav:"metadata"`
}

type videoRepository struct {
	client    API
	tableName string
	indexName string
	now       func() time.Time
}

// NewClient loads the default AWS configuration for region and builds a client.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load AWS config")
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewVideoRepository creates a Video repository backed by DynamoDB.
func NewVideoRepository(client API, tableName, indexName string) (repository.VideoRepository, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" || indexName == "" {
		return nil, errors.New("dynamodb table and owner index names are required")
	}
	return &videoRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		now:       time.Now,
	}, nil
}

func (r *videoRepository) Put(ctx context.Context, video *domain.Video) error {
	if video.UpdatedAt.IsZero() {
		video.UpdatedAt = video.UploadedAt
	}
	av, err := attributevalue.MarshalMap(toItem(video))
	if err != nil {
		return pkgerrors.Wrap(err, "marshal video item")
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrAlreadyExists
		}
		return pkgerrors.Wrapf(err, "put video %s", video.ID)
	}
	return nil
}

func (r *videoRepository) Get(ctx context.Context, id string) (*domain.Video, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get video %s", id)
	}
	if result.Item == nil {
		return nil, repository.ErrNotFound
	}
	return fromAttributes(result.Item)
}

func (r *videoRepository) Update(ctx context.Context, id string, u repository.VideoUpdate) (*domain.Video, error) {
	expr, names, values := updateExpression(u, r.now().UTC())
	condition := "attribute_exists(id)"
	if u.ExpectedStatus != nil {
		names["#status"] = "status"
		values[":expectedStatus"] = &types.AttributeValueMemberS{Value: string(*u.ExpectedStatus)}
		condition += " AND #status = :expectedStatus"
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 idKey(id),
		UpdateExpression:                    aws.String(expr),
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// the old item comes back only when the record exists
			if len(ccf.Item) > 0 {
				return nil, repository.ErrConflict
			}
			return nil, repository.ErrNotFound
		}
		return nil, pkgerrors.Wrapf(err, "update video %s", id)
	}
	return fromAttributes(result.Attributes)
}

// updateExpression builds a SET expression for the non-nil fields of u.
// Metadata entries are set as nested paths so existing keys are kept.
func updateExpression(u repository.VideoUpdate, now time.Time) (string, map[string]string, map[string]types.AttributeValue) {
	var clauses []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	set := func(attr string, value types.AttributeValue) {
		names["#"+attr] = attr
		values[":"+attr] = value
		clauses = append(clauses, fmt.Sprintf("#%s = :%s", attr, attr))
	}
	str := func(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
	num := func(n string) types.AttributeValue { return &types.AttributeValueMemberN{Value: n} }
	float := func(f float64) types.AttributeValue { return num(strconv.FormatFloat(f, 'f', -1, 64)) }
	millis := func(t time.Time) types.AttributeValue { return num(fmt.Sprintf("%d", t.UnixMilli())) }

	set("updatedAt", millis(now))
	if u.Status != nil {
		set("status", str(string(*u.Status)))
	}
	if u.FailureReason != nil {
		set("failureReason", str(*u.FailureReason))
	}
	if u.ConfirmedAt != nil {
		set("confirmedAt", millis(*u.ConfirmedAt))
	}
	if u.ProcessedAt != nil {
		set("processedAt", millis(*u.ProcessedAt))
	}
	if u.ActualSizeBytes != nil {
		set("actualSizeBytes", num(fmt.Sprintf("%d", *u.ActualSizeBytes)))
	}
	if u.DurationSeconds != nil {
		set("durationSeconds", float(*u.DurationSeconds))
	}
	if u.FPS != nil {
		set("fps", float(*u.FPS))
	}
	if u.Angle != nil {
		set("angle", str(*u.Angle))
	}
	if u.Resolution != nil {
		set("resolution", str(*u.Resolution))
	}

	if len(u.Metadata) > 0 {
		keys := make([]string, 0, len(u.Metadata))
		for k := range u.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		names["#metadata"] = "metadata"
		for i, k := range keys {
			name := fmt.Sprintf("#mk%d", i)
			value := fmt.Sprintf(":mv%d", i)
			names[name] = k
			values[value] = str(u.Metadata[k])
			clauses = append(clauses, fmt.Sprintf("#metadata.%s = %s", name, value))
		}
	}
	return "SET " + strings.Join(clauses, ", "), names, values
}

func (r *videoRepository) Query(ctx context.Context, q repository.VideoQuery) ([]domain.Video, int64, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.indexName),
		KeyConditionExpression: aws.String("ownerId = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: q.OwnerID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if q.Status != "" {
		input.FilterExpression = aws.String("#status = :status")
		input.ExpressionAttributeNames = map[string]string{"#status": "status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(q.Status)}
	}

	// The total needs every match, so all pages are read and sliced locally.
	var all []domain.Video
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, pkgerrors.Wrap(err, "query videos by owner")
		}
		for _, av := range page.Items {
			v, err := fromAttributes(av)
			if err != nil {
				return nil, 0, err
			}
			all = append(all, *v)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].UploadedAt.After(all[j].UploadedAt)
	})

	total := int64(len(all))
	if q.Offset >= len(all) {
		return []domain.Video{}, total, nil
	}
	end := len(all)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return all[q.Offset:end], total, nil
}

func (r *videoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return repository.ErrNotFound
		}
		return pkgerrors.Wrapf(err, "delete video %s", id)
	}
	return nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func toItem(v *domain.Video) videoItem {
	item := videoItem{
		ID:                v.ID,
		OwnerID:           v.OwnerID,
		OriginalFilename:  v.OriginalFilename,
		ContentType:       v.ContentType,
		DeclaredSizeBytes: v.DeclaredSizeBytes,
		ActualSizeBytes:   v.ActualSizeBytes,
		StorageKey:        v.StorageKey,
		Status:            string(v.Status),
		FailureReason:     v.FailureReason,
		UploadedAt:        v.UploadedAt.UnixMilli(),
		UpdatedAt:         v.UpdatedAt.UnixMilli(),
		DurationSeconds:   v.DurationSeconds,
		FPS:               v.FPS,
		Angle:             v.Angle,
		Resolution:        v.Resolution,
		Metadata:          map[string]string{},
	}
	if v.ConfirmedAt != nil {
		ms := v.ConfirmedAt.UnixMilli()
		item.ConfirmedAt = &ms
	}
	if v.ProcessedAt != nil {
		ms := v.ProcessedAt.UnixMilli()
		item.ProcessedAt = &ms
	}
	// metadata is always present so nested SET paths resolve
	for k, val := range v.Metadata {
		item.Metadata[k] = val
	}
	return item
}

func fromAttributes(av map[string]types.AttributeValue) (*domain.Video, error) {
	var item videoItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal video item")
	}
	v := &domain.Video{
		ID:                item.ID,
		OwnerID:           item.OwnerID,
		OriginalFilename:  item.OriginalFilename,
		ContentType:       item.ContentType,
		DeclaredSizeBytes: item.DeclaredSizeBytes,
		ActualSizeBytes:   item.ActualSizeBytes,
		StorageKey:        item.StorageKey,
		Status:            domain.VideoStatus(item.Status),
		FailureReason:     item.FailureReason,
		UploadedAt:        time.UnixMilli(item.UploadedAt).UTC(),
		UpdatedAt:         time.UnixMilli(item.UpdatedAt).UTC(),
		DurationSeconds:   item.DurationSeconds,
		FPS:               item.FPS,
		Angle:             item.Angle,
		Resolution:        item.Resolution,
	}
	if item.ConfirmedAt != nil {
		t := time.UnixMilli(*item.ConfirmedAt).UTC()
		v.ConfirmedAt = &t
	}
	if item.ProcessedAt != nil {
		t := time.UnixMilli(*item.ProcessedAt).UTC()
		v.ProcessedAt = &t
	}
	if len(item.Metadata) > 0 {
		v.Metadata = item.Metadata
	}
	return v, nil
}
