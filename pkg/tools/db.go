package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/harun/toolgate/pkg/records"
)

// RecordStore is the storage handle the db kind is constructed with
type RecordStore interface {
	Insert(ctx context.Context, key, value string) (records.Record, error)
	Query(ctx context.Context, key string) ([]records.Record, error)
	ListAll(ctx context.Context) ([]records.Record, error)
	Delete(ctx context.Context, id int64) error
}

type dbArgs struct {
	Action string `json:"action" jsonschema:"description=Database action to perform,enum=insert,enum=query,enum=delete,enum=list_all"`
	Key    string `json:"key,omitempty" jsonschema:"description=The key for the record"`
	Value  string `json:"value,omitempty" jsonschema:"description=The value for the record (required for insert)"`
	ID     int64  `json:"id,omitempty" jsonschema:"description=Record ID (required for delete)"`
}

var dbSchema = capability.ReflectSchema(&dbArgs{})

type dbCapability struct {
	name  string
	store RecordStore
}

func (c *dbCapability) Description() string {
	return "Database operations for storing and retrieving key-value records"
}

func (c *dbCapability) InputSchema() map[string]interface{} {
	return dbSchema
}

func (c *dbCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	action := stringArg(args, "action")
	if action == "" {
		return c.fail("Missing 'action' parameter"), nil
	}
	if c.store == nil {
		return c.fail("Database error: record store is not configured"), nil
	}

	switch action {
	case "insert":
		key, value := stringArg(args, "key"), stringArg(args, "value")
		if key == "" || value == "" {
			return c.fail("Both 'key' and 'value' are required for insert"), nil
		}
		record, err := c.store.Insert(ctx, key, value)
		if err != nil {
			return c.dbError(err), nil
		}
		return capability.Result{
			"tool":   c.name,
			"action": "insert",
			"status": "success",
			"id":     record.ID,
			"key":    key,
			"value":  value,
		}, nil

	case "query":
		key := stringArg(args, "key")
		if key == "" {
			return c.fail("'key' parameter required for query"), nil
		}
		found, err := c.store.Query(ctx, key)
		if err != nil {
			return c.dbError(err), nil
		}
		return capability.Result{
			"tool":    c.name,
			"action":  "query",
			"key":     key,
			"count":   len(found),
			"results": found,
		}, nil

	case "list_all":
		all, err := c.store.ListAll(ctx)
		if err != nil {
			return c.dbError(err), nil
		}
		return capability.Result{
			"tool":    c.name,
			"action":  "list_all",
			"count":   len(all),
			"results": all,
		}, nil

	case "delete":
		id, ok := intArg(args, "id")
		if !ok || id == 0 {
			return c.fail("'id' parameter required for delete"), nil
		}
		if err := c.store.Delete(ctx, id); err != nil {
			if errors.Is(err, records.ErrRecordNotFound) {
				return capability.Result{
					"tool":   c.name,
					"action": "delete",
					"error":  fmt.Sprintf("Record with id %d not found", id),
				}, nil
			}
			return c.dbError(err), nil
		}
		return capability.Result{
			"tool":       c.name,
			"action":     "delete",
			"status":     "success",
			"deleted_id": id,
		}, nil
	}

	return c.fail(fmt.Sprintf("Invalid action '%s'. Use 'insert', 'query', 'delete', or 'list_all'", action)), nil
}

func (c *dbCapability) fail(message string) capability.Result {
	return capability.Result{"tool": c.name, "error": message}
}

func (c *dbCapability) dbError(err error) capability.Result {
	return c.fail(fmt.Sprintf("Database error: %v", err))
}
