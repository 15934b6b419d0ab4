package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imyashkale/mcphub/internal/logger"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements RowStore on DynamoDB tables keyed by a string "id".
// Timestamps are stored as RFC3339 strings.
type DynamoStore struct {
	api    DynamoAPI
	tables map[string]string // logical name -> physical table name
	now    func() time.Time
}

// NewDynamoStore creates a store over api. tables maps logical table
// names to the physical DynamoDB table names.
func NewDynamoStore(api DynamoAPI, tables map[string]string) *DynamoStore {
	return &DynamoStore{
		api:    api,
		tables: tables,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoStore) tableName(table string) (*string, error) {
	name, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return aws.String(name), nil
}

func (s *DynamoStore) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		ColumnId: &types.AttributeValueMemberS{Value: id},
	}
}

// Select uses GetItem for id lookups and a paginated Scan otherwise.
// Ordering happens in process because Scan returns items unordered.
func (s *DynamoStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	name, err := s.tableName(table)
	if err != nil {
		return nil, err
	}

	if id, ok := q.Eq[ColumnId].(string); ok && len(q.Eq) == 1 {
		result, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: name,
			Key:       idKey(id),
		})
		if err != nil {
			return nil, s.fail("get", table, err)
		}
		if result.Item == nil {
			return []Row{}, nil
		}
		row, err := unmarshalRow(result.Item)
		if err != nil {
			return nil, err
		}
		return []Row{row}, nil
	}

	input := &dynamodb.ScanInput{TableName: name}
	if len(q.Eq) > 0 {
		names := make(map[string]string, len(q.Eq))
		values := make(map[string]types.AttributeValue, len(q.Eq))
		conds := make([]string, 0, len(q.Eq))
		for i, col := range sortedColumns(Row(q.Eq)) {
			av, err := attributevalue.Marshal(q.Eq[col])
			if err != nil {
				return nil, fmt.Errorf("failed to marshal filter value for %s: %w", col, err)
			}
			n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
			names[n] = col
			values[v] = av
			conds = append(conds, n+" = "+v)
		}
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	rows := make([]Row, 0)
	paginator := dynamodb.NewScanPaginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.fail("scan", table, err)
		}
		for _, item := range page.Items {
			row, err := unmarshalRow(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	orderRows(rows, q.OrderBy, q.Desc)
	return rows, nil
}

// Insert writes a new item, refusing to overwrite an existing id
func (s *DynamoStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	name, err := s.tableName(table)
	if err != nil {
		return nil, err
	}

	r := row.Clone()
	if r == nil {
		r = Row{}
	}
	if r.Id() == "" {
		r[ColumnId] = uuid.NewString()
	}
	now := s.timestamp()
	if _, ok := r[ColumnCreatedAt]; !ok {
		r[ColumnCreatedAt] = now
	}
	r[ColumnUpdatedAt] = now

	av, err := attributevalue.MarshalMap(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           name,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrAlreadyExists
		}
		return nil, s.fail("insert", table, err)
	}

	return unmarshalRow(av)
}

// Update sets the given attributes on an existing item and returns ALL_NEW
func (s *DynamoStore) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	name, err := s.tableName(table)
	if err != nil {
		return nil, err
	}

	expr, names, values, err := setExpression(row, s.timestamp(), false)
	if err != nil {
		return nil, err
	}

	result, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 name,
		Key:                       idKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			logger.WithFields(map[string]interface{}{
				"table": table,
				"id":    id,
			}).Warn("Item not found during update")
			return nil, ErrNotFound
		}
		return nil, s.fail("update", table, err)
	}
	return unmarshalRow(result.Attributes)
}

// Upsert creates or merges an item. Only "id" is supported as the conflict key
// since it is the table's partition key.
func (s *DynamoStore) Upsert(ctx context.Context, table string, row Row, onConflict string) (Row, error) {
	name, err := s.tableName(table)
	if err != nil {
		return nil, err
	}
	if onConflict != "" && onConflict != ColumnId {
		return nil, fmt.Errorf("dynamodb upsert supports conflict on %q only, got %q", ColumnId, onConflict)
	}
	id := row.Id()
	if id == "" {
		return nil, fmt.Errorf("dynamodb upsert requires an %q", ColumnId)
	}

	expr, names, values, err := setExpression(row, s.timestamp(), true)
	if err != nil {
		return nil, err
	}

	result, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 name,
		Key:                       idKey(id),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, s.fail("upsert", table, err)
	}
	return unmarshalRow(result.Attributes)
}

// Delete removes an item, failing with ErrNotFound when it does not exist
func (s *DynamoStore) Delete(ctx context.Context, table, id string) error {
	name, err := s.tableName(table)
	if err != nil {
		return err
	}

	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           name,
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return s.fail("delete", table, err)
	}
	return nil
}

func (s *DynamoStore) fail(op, table string, err error) error {
	logger.WithFields(map[string]interface{}{
		"operation": op,
		"table":     table,
		"error":     err.Error(),
	}).Error("DynamoDB operation failed")
	return fmt.Errorf("dynamodb %s on %s: %w", op, table, err)
}

// setExpression builds "SET #c0 = :c0, ..., #u = :u" for row. With
// keepCreated the created_at attribute is only written when missing.
func setExpression(row Row, now string, keepCreated bool) (string, map[string]string, map[string]types.AttributeValue, error) {
	cols := sortedColumns(row, ColumnId, ColumnCreatedAt, ColumnUpdatedAt)
	names := make(map[string]string, len(cols)+2)
	values := make(map[string]types.AttributeValue, len(cols)+1)
	sets := make([]string, 0, len(cols)+2)

	for i, col := range cols {
		av, err := attributevalue.Marshal(row[col])
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to marshal %s: %w", col, err)
		}
		n, v := fmt.Sprintf("#c%d", i), fmt.Sprintf(":c%d", i)
		names[n] = col
		values[v] = av
		sets = append(sets, n+" = "+v)
	}

	names["#u"] = ColumnUpdatedAt
	values[":now"] = &types.AttributeValueMemberS{Value: now}
	sets = append(sets, "#u = :now")
	if keepCreated {
		names["#cr"] = ColumnCreatedAt
		sets = append(sets, "#cr = if_not_exists(#cr, :now)")
	}

	return "SET " + strings.Join(sets, ", "), names, values, nil
}

func unmarshalRow(item map[string]types.AttributeValue) (Row, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return Row(m), nil
}
