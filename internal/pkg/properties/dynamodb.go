package properties

import (
	"context"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"k8s.io/klog/v2"
	"time"
)

const (
	attrArtifactID = "artifact_id"
	attrProperty   = "property"
	attrValue      = "value"
	attrUpdatedAt  = "updated_at"
)

// DynamoDBStore keeps one item per property in a table keyed by (artifact_id, property).
type DynamoDBStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// NewDynamoDBStore uses the shared AWS configuration (environment, ~/.aws, instance profile) to reach DynamoDB.
func NewDynamoDBStore(table string) *DynamoDBStore {
	s := session.Must(session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable}))
	return &DynamoDBStore{client: dynamodb.New(s), table: table}
}

func (d *DynamoDBStore) itemKey(artifactID, key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		attrArtifactID: {S: aws.String(artifactID)},
		attrProperty:   {S: aws.String(key)},
	}
}

func (d *DynamoDBStore) Get(ctx context.Context, artifactID, key string) (string, bool, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.itemKey(artifactID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, d.wrap(err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	v, ok := out.Item[attrValue]
	if !ok || v.S == nil {
		return "", false, nil
	}
	return *v.S, true, nil
}

func (d *DynamoDBStore) Set(ctx context.Context, artifactID, key, value string) error {
	item := d.itemKey(artifactID, key)
	item[attrValue] = &dynamodb.AttributeValue{S: aws.String(value)}
	item[attrUpdatedAt] = &dynamodb.AttributeValue{S: aws.String(time.Now().UTC().Format(time.RFC3339))}
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	return d.wrap(err)
}

func (d *DynamoDBStore) Has(ctx context.Context, artifactID, key string) (bool, error) {
	_, ok, err := d.Get(ctx, artifactID, key)
	return ok, err
}

func (d *DynamoDBStore) Close() error {
	return nil
}

func (d *DynamoDBStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case dynamodb.ErrCodeResourceNotFoundException:
			klog.Errorf("DynamoDB table %s does not exist", d.table)
			return fmt.Errorf("dynamodb table %s not found: %w", d.table, err)
		case dynamodb.ErrCodeProvisionedThroughputExceededException, dynamodb.ErrCodeRequestLimitExceeded:
			klog.Warningf("DynamoDB throughput exceeded on table %s", d.table)
		}
	}
	return err
}
