package products

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/aws"
)

// batchGetLimit is DynamoDB's per-request key limit for BatchGetItem.
const batchGetLimit = 100

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductExists   = errors.New("product already exists")
	ErrFeaturedChanged = errors.New("featured flag changed concurrently")
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) Create(ctx context.Context, p Product) error {
	const op = "products.Create"
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return apperrors.Upstream(op, fmt.Errorf("marshal product: %w", err))
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return apperrors.Conflict(op, ErrProductExists)
		}
		return apperrors.Upstream(op, fmt.Errorf("put item: %w", err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	const op = "products.Get"
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       productKey(productID),
	})
	if err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("get item: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound(op, ErrProductNotFound)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal product: %w", err))
	}
	return &p, nil
}

// BatchGet loads products by id. Ids that do not resolve are absent from the result.
func (s *Store) BatchGet(ctx context.Context, ids []string) (map[string]Product, error) {
	const op = "products.BatchGet"
	found := make(map[string]Product, len(ids))

	unique := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	for start := 0; start < len(unique); start += batchGetLimit {
		end := min(start+batchGetLimit, len(unique))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range unique[start:end] {
			keys = append(keys, productKey(id))
		}
		out, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.tableName: {Keys: keys},
			},
		})
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("batch get: %w", err))
		}
		// no automatic retries: unprocessed keys are reported, not re-requested
		if len(out.UnprocessedKeys[s.tableName].Keys) > 0 {
			return nil, apperrors.Upstream(op, fmt.Errorf("batch get: %d keys unprocessed", len(out.UnprocessedKeys[s.tableName].Keys)))
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Responses[s.tableName], &page); err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal products: %w", err))
		}
		for _, p := range page {
			found[p.ProductID] = p
		}
	}
	return found, nil
}

// List scans the catalog and applies filtering, ordering and paging in memory.
// It returns the page and the number of products matching the filter.
func (s *Store) List(ctx context.Context, q ListQuery) ([]Product, int, error) {
	const op = "products.List"
	var all []Product

	paginator := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, apperrors.Upstream(op, fmt.Errorf("scan: %w", err))
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, 0, apperrors.Upstream(op, fmt.Errorf("unmarshal products: %w", err))
		}
		for _, p := range page {
			if q.matches(p) {
				all = append(all, p)
			}
		}
	}

	if less := sortFunc(q.SortBy, q.Desc); less != nil {
		sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	}

	total := len(all)
	if q.Limit <= 0 {
		return all, total, nil
	}
	skip := q.Limit * (max(q.Page, 1) - 1)
	if skip >= total {
		return []Product{}, total, nil
	}
	end := min(skip+q.Limit, total)
	return all[skip:end], total, nil
}

// Update applies a partial update and returns the new state.
func (s *Store) Update(ctx context.Context, productID string, patch Patch) (*Product, error) {
	const op = "products.Update"
	sets := map[string]any{}
	if patch.Title != nil {
		sets["title"] = *patch.Title
	}
	if patch.Description != nil {
		sets["description"] = *patch.Description
	}
	if patch.Price != nil {
		sets["price"] = *patch.Price
	}
	if patch.DiscountPercentage != nil {
		sets["discount_percentage"] = *patch.DiscountPercentage
	}
	if patch.Category != nil {
		sets["category"] = *patch.Category
	}
	if patch.SubCategory != nil {
		sets["sub_category"] = *patch.SubCategory
	}
	if patch.StockQuantity != nil {
		sets["stock_quantity"] = patch.StockQuantity
	}
	if patch.Thumbnail != nil {
		sets["thumbnail"] = *patch.Thumbnail
	}
	if patch.Images != nil {
		sets["images"] = patch.Images
	}
	return s.update(ctx, op, productID, sets, nil)
}

// SetDeleted flips the soft-delete flag.
func (s *Store) SetDeleted(ctx context.Context, productID string, deleted bool) (*Product, error) {
	return s.update(ctx, "products.SetDeleted", productID, map[string]any{"is_deleted": deleted}, nil)
}

// SetFeatured writes the featured flag only if it still equals expected.
func (s *Store) SetFeatured(ctx context.Context, productID string, expected, featured bool) (*Product, error) {
	const op = "products.SetFeatured"
	p, err := s.update(ctx, op, productID, map[string]any{"is_featured": featured},
		&guard{attr: "is_featured", value: &types.AttributeValueMemberBOOL{Value: expected}})
	if apperrors.Is(err, apperrors.KindConflict) {
		return nil, apperrors.Conflict(op, ErrFeaturedChanged)
	}
	return p, err
}

// guard makes an update conditional on an attribute still holding a value.
type guard struct {
	attr  string
	value types.AttributeValue
}

func (s *Store) update(ctx context.Context, op, productID string, sets map[string]any, g *guard) (*Product, error) {
	sets["updated_at"] = s.nowFunc().UTC()

	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)

	attrNames := map[string]string{}
	values := map[string]types.AttributeValue{}
	clauses := make([]string, 0, len(names))
	for i, name := range names {
		av, err := attributevalue.Marshal(sets[name])
		if err != nil {
			return nil, apperrors.Upstream(op, fmt.Errorf("marshal %s: %w", name, err))
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		attrNames[n] = name
		values[v] = av
		clauses = append(clauses, n+" = "+v)
	}
	attrNames["#pk"] = "product_id"
	cond := "attribute_exists(#pk)"
	if g != nil {
		attrNames["#g"] = g.attr
		values[":expected"] = g.value
		cond += " AND #g = :expected"
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       productKey(productID),
		UpdateExpression:          awsString("SET " + strings.Join(clauses, ", ")),
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  attrNames,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			if g == nil {
				return nil, apperrors.NotFound(op, ErrProductNotFound)
			}
			// either the product is gone or the guarded attribute moved
			if _, getErr := s.Get(ctx, productID); getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.Conflict(op, err)
		}
		return nil, apperrors.Upstream(op, fmt.Errorf("update item: %w", err))
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, apperrors.Upstream(op, fmt.Errorf("unmarshal product: %w", err))
	}
	return &p, nil
}

func (q ListQuery) matches(p Product) bool {
	if q.Category != "" && p.Category != q.Category {
		return false
	}
	if q.SubCategory != "" && p.SubCategory != q.SubCategory {
		return false
	}
	if q.FeaturedOnly && !p.IsFeatured {
		return false
	}
	if q.HideDeleted && p.IsDeleted {
		return false
	}
	if q.Text != "" {
		text := strings.ToLower(q.Text)
		return strings.Contains(strings.ToLower(p.Title), text) ||
			strings.Contains(strings.ToLower(p.Description), text)
	}
	return true
}

func sortFunc(field string, desc bool) func(a, b Product) bool {
	var asc func(a, b Product) bool
	switch field {
	case "price":
		asc = func(a, b Product) bool { return a.Price.Decimal().LessThan(b.Price.Decimal()) }
	case "title":
		asc = func(a, b Product) bool { return a.Title < b.Title }
	case "createdAt":
		asc = func(a, b Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "discountPercentage":
		asc = func(a, b Product) bool { return a.DiscountPercentage < b.DiscountPercentage }
	default:
		return nil
	}
	if desc {
		return func(a, b Product) bool { return asc(b, a) }
	}
	return asc
}

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
