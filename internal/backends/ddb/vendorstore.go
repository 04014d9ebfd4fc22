package ddb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"venmux/internal/types"
)

// VendorStore keeps one item per vendor record under a fixed partition.
// Snapshot writes the full set and deletes items for vendors that are gone,
// so a Load after any Snapshot observes exactly that snapshot.
type VendorStore struct {
	table string
	cli   *dynamodb.Client
}

func NewVendorStore(table string, cli *dynamodb.Client) *VendorStore {
	// Creates the table only if it doesn't exist.
	// We ignore the error if the table already exists.
	createTableIfNotExists(cli, table)
	return &VendorStore{table: table, cli: cli}
}

func (s *VendorStore) Snapshot(ctx context.Context, records []types.VendorRecord) error {
	existing, err := s.listIDs(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(records))
	for _, rec := range records {
		keep[rec.ID] = true
		item, err := attributevalue.MarshalMap(struct {
			PK string `dynamodbav:"PK"`
			SK string `dynamodbav:"SK"`
			types.VendorRecord
		}{
			PK:           pkVendors(),
			SK:           skVendor(rec.ID),
			VendorRecord: rec,
		})
		if err != nil {
			return err
		}
		if _, err := s.cli.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &s.table,
			Item:      item,
		}); err != nil {
			return types.Err(types.ErrStoreAccess, err, "writing vendor %s", rec.ID)
		}
	}
	for _, id := range existing {
		if keep[id] {
			continue
		}
		if _, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &s.table,
			Key: map[string]ddbTypes.AttributeValue{
				"PK": &ddbTypes.AttributeValueMemberS{Value: pkVendors()},
				"SK": &ddbTypes.AttributeValueMemberS{Value: skVendor(id)},
			},
		}); err != nil {
			return types.Err(types.ErrStoreAccess, err, "pruning vendor %s", id)
		}
	}
	return nil
}

func (s *VendorStore) Load(ctx context.Context) ([]types.VendorRecord, error) {
	out, err := s.cli.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: pkVendors()},
			":sk": &ddbTypes.AttributeValueMemberS{Value: SVendor + "#"},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		log.WithError(err).Warn("vendor table unreadable; starting empty")
		return []types.VendorRecord{}, nil
	}
	records := make([]types.VendorRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var rec types.VendorRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			log.WithError(err).Warn("vendor item corrupt; skipped")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *VendorStore) listIDs(ctx context.Context) ([]string, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
