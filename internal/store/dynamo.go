package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
//
//	PK=USER#{userId}  SK=ACCOUNT#{accountId}
//	PK=USER#{userId}  SK=DRAFT#{createdAt}#{draftId}
//	PK=FRAMES         SK=FRAME#{frameId}
const (
	pkUserPrefix = "USER#"
	pkFrames     = "FRAMES"
	skAccount    = "ACCOUNT#"
	skDraft      = "DRAFT#"
	skFrame      = "FRAME#"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// --- Internal helpers ---

func userPK(userID string) string {
	return pkUserPrefix + userID
}

// draftSKLayout is fixed width so sort keys order by time. RFC3339Nano trims
// trailing zeros and does not.
const draftSKLayout = "2006-01-02T15:04:05.000000000Z07:00"

func draftSK(d *Draft) string {
	return skDraft + d.CreatedAt.UTC().Format(draftSKLayout) + "#" + d.ID
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals a domain object and writes it with PK and SK.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// deleteItem removes a single item by PK/SK and reports ErrNotFound when
// nothing was there.
func (s *DynamoStore) deleteItem(ctx context.Context, pk, sk string) error {
	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          key(pk, sk),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if len(result.Attributes) == 0 {
		return ErrNotFound
	}
	return nil
}

// queryBySKPrefix returns all items under pk whose SK begins with skPrefix.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, pk, skPrefix string, forward bool) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(forward),
	}

	var allItems []map[string]types.AttributeValue

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// --- Accounts ---

func (s *DynamoStore) UpsertAccount(ctx context.Context, account *Account) (*Account, error) {
	a := *account
	now := s.now().UTC()
	prepareAccount(&a, now)

	var existing Account
	found, err := s.getItem(ctx, userPK(a.UserID), skAccount+a.ID, &existing)
	if err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", a.InstagramBusinessID, err)
	}
	if found {
		a.CreatedAt = existing.CreatedAt
	}

	if err := s.putItem(ctx, userPK(a.UserID), skAccount+a.ID, &a); err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", a.InstagramBusinessID, err)
	}

	log.Debug().Str("accountId", a.ID).Str("userId", a.UserID).Bool("existed", found).Msg("Account persisted to DynamoDB")
	return &a, nil
}

func (s *DynamoStore) GetAccount(ctx context.Context, id, userID string) (*Account, error) {
	var a Account
	found, err := s.getItem(ctx, userPK(userID), skAccount+id, &a)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &a, nil
}

func (s *DynamoStore) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	items, err := s.queryBySKPrefix(ctx, userPK(userID), skAccount, true)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts := []Account{}
	if err := attributevalue.UnmarshalListOfMaps(items, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (s *DynamoStore) DeleteAccount(ctx context.Context, id, userID string) error {
	if err := s.deleteItem(ctx, userPK(userID), skAccount+id); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return nil
}

// --- Drafts ---

func (s *DynamoStore) CreateDraft(ctx context.Context, draft *Draft) error {
	if draft.ID == "" {
		draft.ID = newID()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.now().UTC()
	}
	if draft.Hashtags == nil {
		draft.Hashtags = []string{}
	}
	if err := s.putItem(ctx, userPK(draft.UserID), draftSK(draft), draft); err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListDrafts(ctx context.Context, userID string) ([]Draft, error) {
	items, err := s.queryBySKPrefix(ctx, userPK(userID), skDraft, false)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	drafts := []Draft{}
	if err := attributevalue.UnmarshalListOfMaps(items, &drafts); err != nil {
		return nil, fmt.Errorf("unmarshal drafts: %w", err)
	}
	return drafts, nil
}

// DeleteDraft locates the draft by ID among the user's drafts, since the sort
// key embeds the creation time.
func (s *DynamoStore) DeleteDraft(ctx context.Context, id, userID string) error {
	drafts, err := s.ListDrafts(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	for i := range drafts {
		if drafts[i].ID == id {
			if err := s.deleteItem(ctx, userPK(userID), draftSK(&drafts[i])); err != nil {
				if err == ErrNotFound {
					return err
				}
				return fmt.Errorf("delete draft %s: %w", id, err)
			}
			return nil
		}
	}
	return ErrNotFound
}

// --- Frames ---

func (s *DynamoStore) CreateFrame(ctx context.Context, frame *Frame) error {
	if frame.ID == "" {
		frame.ID = newID()
	}
	now := s.now().UTC()
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = now
	}
	frame.UpdatedAt = now
	if err := s.putItem(ctx, pkFrames, skFrame+frame.ID, frame); err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListFrames(ctx context.Context) ([]Frame, error) {
	items, err := s.queryBySKPrefix(ctx, pkFrames, skFrame, true)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	frames := []Frame{}
	if err := attributevalue.UnmarshalListOfMaps(items, &frames); err != nil {
		return nil, fmt.Errorf("unmarshal frames: %w", err)
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].CreatedAt.After(frames[j].CreatedAt) })
	return frames, nil
}

func (s *DynamoStore) GetFrame(ctx context.Context, id string) (*Frame, error) {
	var f Frame
	found, err := s.getItem(ctx, pkFrames, skFrame+id, &f)
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &f, nil
}

func (s *DynamoStore) DeleteFrame(ctx context.Context, id string) error {
	if err := s.deleteItem(ctx, pkFrames, skFrame+id); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("delete frame %s: %w", id, err)
	}
	return nil
}
