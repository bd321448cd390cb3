// Package awstest provides an in-memory DynamoDB fake for store tests.
//
// It understands the expression shapes the stores in this module issue:
// single-equality key conditions, SET/ADD/REMOVE update clauses and
// attribute_exists / attribute_not_exists / equality conditions joined by AND.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type index struct {
	hash  string
	rng   string
	table string
}

// Dynamo is a concurrency-safe fake of the DynamoDB operations used by the stores.
type Dynamo struct {
	mu      sync.Mutex
	keys    map[string][]string
	indexes map[string]index
	tables  map[string]map[string]map[string]types.AttributeValue
	order   map[string][]string
	fail    map[string]error
	calls   map[string]int
}

func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:    map[string][]string{},
		indexes: map[string]index{},
		tables:  map[string]map[string]map[string]types.AttributeValue{},
		order:   map[string][]string{},
		fail:    map[string]error{},
		calls:   map[string]int{},
	}
}

// DefineTable declares a table's key schema: hash key first, optional range key second.
func (d *Dynamo) DefineTable(name string, keyAttrs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = keyAttrs
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = map[string]map[string]types.AttributeValue{}
	}
}

// DefineIndex declares a secondary index; rangeAttr may be empty.
func (d *Dynamo) DefineIndex(table, name, hashAttr, rangeAttr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexes[table+"/"+name] = index{hash: hashAttr, rng: rangeAttr, table: table}
}

// FailOn makes every subsequent call to op (e.g. "BatchWriteItem") return err.
// A nil err clears the failure.
func (d *Dynamo) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

// Calls returns how many times op was invoked.
func (d *Dynamo) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Put stores an item directly, bypassing conditions.
func (d *Dynamo) Put(table string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, err := d.itemKey(table, item)
	if err != nil {
		panic(err)
	}
	d.store(table, k, item)
}

// Item returns a copy of the stored item for the given key values, or nil.
func (d *Dynamo) Item(table string, keyValues ...string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.tables[table][strings.Join(keyValues, "|")]
	if !ok {
		return nil
	}
	return clone(item)
}

// Len returns the number of items in a table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *Dynamo) enter(op string) error {
	d.mu.Lock()
	d.calls[op]++
	return d.fail[op]
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	if err := d.enter("PutItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	table := *params.TableName
	k, err := d.itemKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][k]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing); err != nil {
		return nil, err
	}
	d.store(table, k, clone(params.Item))
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	if err := d.enter("GetItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	k, err := d.itemKey(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.tables[*params.TableName][k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if err := d.enter("UpdateItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	table := *params.TableName
	k, err := d.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][k]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing); err != nil {
		return nil, err
	}

	item := clone(existing)
	if item == nil {
		item = clone(params.Key)
	}
	updated, err := applyUpdate(deref(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
	if err != nil {
		return nil, err
	}
	d.store(table, k, item)

	out := &dyn.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = clone(item)
	case types.ReturnValueUpdatedNew:
		out.Attributes = map[string]types.AttributeValue{}
		for _, name := range updated {
			if v, ok := item[name]; ok {
				out.Attributes[name] = v
			}
		}
	case types.ReturnValueAllOld:
		out.Attributes = clone(existing)
	}
	return out, nil
}

func (d *Dynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	if err := d.enter("DeleteItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	table := *params.TableName
	k, err := d.itemKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	existing := d.tables[table][k]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing); err != nil {
		return nil, err
	}
	d.remove(table, k)

	out := &dyn.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = existing
	}
	return out, nil
}

func (d *Dynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	if err := d.enter("Query"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	table := *params.TableName
	idx := index{table: table}
	if params.IndexName != nil {
		var ok bool
		idx, ok = d.indexes[table+"/"+*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("awstest: unknown index %s on %s", *params.IndexName, table)
		}
	} else {
		keys := d.keys[table]
		idx.hash = keys[0]
		if len(keys) > 1 {
			idx.rng = keys[1]
		}
	}

	attr, want, err := parseEquality(deref(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if attr != idx.hash {
		return nil, fmt.Errorf("awstest: key condition on %s, index hash key is %s", attr, idx.hash)
	}

	var matched []string
	for _, k := range d.order[table] {
		if equal(d.tables[table][k][attr], want) {
			matched = append(matched, k)
		}
	}
	if idx.rng != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(d.tables[table][matched[i]][idx.rng], d.tables[table][matched[j]][idx.rng])
		})
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	page, last, err := d.page(table, matched, params.ExclusiveStartKey, params.Limit)
	if err != nil {
		return nil, err
	}
	out := &dyn.QueryOutput{Count: int32(len(page)), ScannedCount: int32(len(page)), LastEvaluatedKey: last}
	if params.Select != types.SelectCount {
		out.Items = d.items(table, page)
	}
	return out, nil
}

func (d *Dynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	if err := d.enter("Scan"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	table := *params.TableName
	all := append([]string(nil), d.order[table]...)
	page, last, err := d.page(table, all, params.ExclusiveStartKey, params.Limit)
	if err != nil {
		return nil, err
	}
	out := &dyn.ScanOutput{Count: int32(len(page)), ScannedCount: int32(len(page)), LastEvaluatedKey: last}
	if params.Select != types.SelectCount {
		out.Items = d.items(table, page)
	}
	return out, nil
}

func (d *Dynamo) BatchGetItem(ctx context.Context, params *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	if err := d.enter("BatchGetItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	out := &dyn.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	total := 0
	for table, ka := range params.RequestItems {
		for _, key := range ka.Keys {
			total++
			k, err := d.itemKey(table, key)
			if err != nil {
				return nil, err
			}
			if item, ok := d.tables[table][k]; ok {
				out.Responses[table] = append(out.Responses[table], clone(item))
			}
		}
	}
	if total > 100 {
		return nil, errors.New("awstest: ValidationException: too many items requested for the BatchGetItem call")
	}
	return out, nil
}

func (d *Dynamo) BatchWriteItem(ctx context.Context, params *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	if err := d.enter("BatchWriteItem"); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	defer d.mu.Unlock()

	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total > 25 {
		return nil, errors.New("awstest: ValidationException: too many items in the BatchWriteItem request")
	}
	for table, reqs := range params.RequestItems {
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				k, err := d.itemKey(table, r.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				d.store(table, k, clone(r.PutRequest.Item))
			case r.DeleteRequest != nil:
				k, err := d.itemKey(table, r.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				d.remove(table, k)
			}
		}
	}
	return &dyn.BatchWriteItemOutput{}, nil
}

func (d *Dynamo) itemKey(table string, item map[string]types.AttributeValue) (string, error) {
	attrs, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("awstest: ResourceNotFoundException: table %s", table)
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, ok := item[a]
		if !ok {
			return "", fmt.Errorf("awstest: ValidationException: missing key attribute %s", a)
		}
		parts = append(parts, scalar(v))
	}
	return strings.Join(parts, "|"), nil
}

func (d *Dynamo) keyOf(table string, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{}
	for _, a := range d.keys[table] {
		out[a] = item[a]
	}
	return out
}

func (d *Dynamo) store(table, k string, item map[string]types.AttributeValue) {
	if _, ok := d.tables[table][k]; !ok {
		d.order[table] = append(d.order[table], k)
	}
	d.tables[table][k] = item
}

func (d *Dynamo) remove(table, k string) {
	if _, ok := d.tables[table][k]; !ok {
		return
	}
	delete(d.tables[table], k)
	keys := d.order[table]
	for i, existing := range keys {
		if existing == k {
			d.order[table] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
}

func (d *Dynamo) page(table string, keys []string, start map[string]types.AttributeValue, limit *int32) ([]string, map[string]types.AttributeValue, error) {
	if len(start) > 0 {
		sk, err := d.itemKey(table, start)
		if err != nil {
			return nil, nil, err
		}
		for i, k := range keys {
			if k == sk {
				keys = keys[i+1:]
				break
			}
		}
	}
	if limit == nil || int(*limit) >= len(keys) {
		return keys, nil, nil
	}
	page := keys[:*limit]
	return page, d.keyOf(table, d.tables[table][page[len(page)-1]]), nil
}

func (d *Dynamo) items(table string, keys []string) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(d.tables[table][k]))
	}
	return out
}

var clauseRe = regexp.MustCompile(`\b(SET|ADD|REMOVE)\b`)

// applyUpdate mutates item and returns the names of the attributes it touched.
func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) ([]string, error) {
	var touched []string
	locs := clauseRe.FindAllStringIndex(expr, -1)
	for i, loc := range locs {
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		verb := expr[loc[0]:loc[1]]
		for _, part := range strings.Split(expr[loc[1]:end], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			switch verb {
			case "SET":
				lhs, rhs, ok := strings.Cut(part, "=")
				if !ok {
					return nil, fmt.Errorf("awstest: bad SET clause %q", part)
				}
				name := resolve(strings.TrimSpace(lhs), names)
				v, ok := values[strings.TrimSpace(rhs)]
				if !ok {
					return nil, fmt.Errorf("awstest: missing value %s", rhs)
				}
				item[name] = v
				touched = append(touched, name)
			case "ADD":
				fields := strings.Fields(part)
				if len(fields) != 2 {
					return nil, fmt.Errorf("awstest: bad ADD clause %q", part)
				}
				name := resolve(fields[0], names)
				inc, ok := values[fields[1]].(*types.AttributeValueMemberN)
				if !ok {
					return nil, fmt.Errorf("awstest: ADD needs a number for %s", fields[1])
				}
				cur := int64(0)
				if n, ok := item[name].(*types.AttributeValueMemberN); ok {
					cur, _ = strconv.ParseInt(n.Value, 10, 64)
				}
				delta, _ := strconv.ParseInt(inc.Value, 10, 64)
				item[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
				touched = append(touched, name)
			case "REMOVE":
				name := resolve(part, names)
				delete(item, name)
				touched = append(touched, name)
			}
		}
	}
	return touched, nil
}

func checkCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	if expr == nil || *expr == "" {
		return nil
	}
	for _, cond := range strings.Split(*expr, " AND ") {
		cond = strings.TrimSpace(cond)
		var ok bool
		switch {
		case strings.HasPrefix(cond, "attribute_not_exists("):
			_, present := item[resolve(strings.TrimSuffix(strings.TrimPrefix(cond, "attribute_not_exists("), ")"), names)]
			ok = !present
		case strings.HasPrefix(cond, "attribute_exists("):
			_, ok = item[resolve(strings.TrimSuffix(strings.TrimPrefix(cond, "attribute_exists("), ")"), names)]
		default:
			attr, want, err := parseEquality(cond, names, values)
			if err != nil {
				return err
			}
			ok = item != nil && equal(item[attr], want)
		}
		if !ok {
			msg := "The conditional request failed"
			return &types.ConditionalCheckFailedException{Message: &msg}
		}
	}
	return nil
}

func parseEquality(expr string, names map[string]string, values map[string]types.AttributeValue) (string, types.AttributeValue, error) {
	lhs, rhs, ok := strings.Cut(expr, "=")
	if !ok {
		return "", nil, fmt.Errorf("awstest: unsupported expression %q", expr)
	}
	v, ok := values[strings.TrimSpace(rhs)]
	if !ok {
		return "", nil, fmt.Errorf("awstest: missing value %s", rhs)
	}
	return resolve(strings.TrimSpace(lhs), names), v, nil
}

func resolve(name string, names map[string]string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func scalar(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(t.Value)
	default:
		return fmt.Sprintf("%T", v)
	}
}

func equal(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b) && scalar(a) == scalar(b)
}

func less(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		af, _ := strconv.ParseFloat(an.Value, 64)
		bf, _ := strconv.ParseFloat(bn.Value, 64)
		return af < bf
	}
	return scalar(a) < scalar(b)
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
