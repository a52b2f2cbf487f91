package strapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yelena0000/fish-store/core"
)

// validator is implemented by the schema types; a failing entity makes the
// whole response malformed.
type validator interface {
	validate() error
}

// Collection is typed CRUD access to one CMS collection. Document ids are used
// in paths, as Strapi v5 requires.
type Collection[T any] struct {
	client *Client
	name   string
}

func newCollection[T any](c *Client, name string) *Collection[T] {
	return &Collection[T]{client: c, name: name}
}

type itemEnvelope[T any] struct {
	Data *T `json:"data"`
}

// List returns the entities matching q and the pagination meta (nil when the CMS omits it).
func (col *Collection[T]) List(ctx context.Context, q *Query) ([]T, *Pagination, error) {
	op := "strapi.List " + col.name

	var raw struct {
		Data json.RawMessage `json:"data"`
		Meta json.RawMessage `json:"meta"`
	}
	if err := col.client.do(ctx, op, http.MethodGet, col.name, q.Values(), nil, &raw); err != nil {
		return nil, nil, err
	}
	if len(raw.Data) == 0 || raw.Data[0] != '[' {
		return nil, nil, malformed(op, fmt.Errorf("expected a list in data, got %.40s", string(raw.Data)))
	}

	var items []T
	if err := json.Unmarshal(raw.Data, &items); err != nil {
		return nil, nil, malformed(op, err)
	}
	var meta struct {
		Pagination *Pagination `json:"pagination"`
	}
	if len(raw.Meta) > 0 {
		if err := json.Unmarshal(raw.Meta, &meta); err != nil {
			return nil, nil, malformed(op, err)
		}
	}
	for i := range items {
		if err := validate(&items[i]); err != nil {
			return nil, nil, malformed(op, err)
		}
	}
	return items, meta.Pagination, nil
}

// Get fetches one entity by document id.
func (col *Collection[T]) Get(ctx context.Context, documentID string, q *Query) (*T, error) {
	op := "strapi.Get " + col.name
	return col.single(ctx, op, http.MethodGet, documentID, q.Values(), nil)
}

// Create stores a new entity built from fields and returns it as the CMS saved it.
func (col *Collection[T]) Create(ctx context.Context, fields interface{}, q *Query) (*T, error) {
	op := "strapi.Create " + col.name
	return col.single(ctx, op, http.MethodPost, "", q.Values(), fields)
}

// Update changes the given fields of an entity.
func (col *Collection[T]) Update(ctx context.Context, documentID string, fields interface{}, q *Query) (*T, error) {
	op := "strapi.Update " + col.name
	return col.single(ctx, op, http.MethodPut, documentID, q.Values(), fields)
}

// Delete removes an entity.
func (col *Collection[T]) Delete(ctx context.Context, documentID string) error {
	op := "strapi.Delete " + col.name
	if documentID == "" {
		return core.NewValidationError(op, "document id is required")
	}
	return col.client.do(ctx, op, http.MethodDelete, col.name+"/"+url.PathEscape(documentID), nil, nil, nil)
}

func (col *Collection[T]) single(ctx context.Context, op, method, documentID string, query url.Values, body interface{}) (*T, error) {
	path := col.name
	if method != http.MethodPost {
		if documentID == "" {
			return nil, core.NewValidationError(op, "document id is required")
		}
		path += "/" + url.PathEscape(documentID)
	}

	var env itemEnvelope[T]
	if err := col.client.do(ctx, op, method, path, query, body, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		if method == http.MethodGet {
			return nil, core.NewNotFoundError(op, documentID, fmt.Sprintf("%s %s not found", col.name, documentID))
		}
		return nil, malformed(op, fmt.Errorf("empty data in %s response", method))
	}
	if err := validate(env.Data); err != nil {
		return nil, malformed(op, err)
	}
	return env.Data, nil
}

func validate(v interface{}) error {
	if val, ok := v.(validator); ok {
		return val.validate()
	}
	return nil
}
