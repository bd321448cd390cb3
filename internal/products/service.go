package products

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/categories"
)

const (
	defaultPageSize = 10
	latestLimit     = 10
	suggestionLimit = 5
)

// CategoryLookup resolves a category by name.
type CategoryLookup interface {
	Get(ctx context.Context, name string) (*categories.Category, error)
}

// Service is the catalog API used by handlers and by order item resolution.
type Service struct {
	store      *Store
	cache      Cache
	categories CategoryLookup
	validate   *validatorv10.Validate
	log        *slog.Logger
	sfg        singleflight.Group
}

// NewService wires a Service. cache may be nil, in which case every read goes
// to the store. Without cats, Latest matches the category name as given.
func NewService(store *Store, cache Cache, cats CategoryLookup, validate *validatorv10.Validate, log *slog.Logger) *Service {
	return &Service{store: store, cache: cache, categories: cats, validate: validate, log: log}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation("products.Create", err)
	}
	p := Product{
		ProductID:          uuid.NewString(),
		Title:              in.Title,
		Description:        in.Description,
		Price:              in.Price,
		DiscountPercentage: in.DiscountPercentage,
		Category:           in.Category,
		SubCategory:        in.SubCategory,
		StockQuantity:      in.StockQuantity,
		Thumbnail:          in.Thumbnail,
		Images:             in.Images,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, p.ProductID)
}

// Get reads through the cache. Concurrent misses for the same product share
// one store read. Cache failures are logged and fall back to the store.
func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	if s.cache != nil {
		p, err := s.cache.Get(ctx, productID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.WarnContext(ctx, "product cache read failed", "product_id", productID, "err", err)
		}
	}

	v, err, _ := s.sfg.Do(productID, func() (interface{}, error) {
		p, err := s.store.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, p); err != nil {
				s.log.WarnContext(ctx, "product cache write failed", "product_id", productID, "err", err)
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*Product)
	return &p, nil
}

func (s *Service) BatchGet(ctx context.Context, ids []string) (map[string]Product, error) {
	return s.store.BatchGet(ctx, ids)
}

// List returns one page and the total matching count. A subCategory filter
// needs its category.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Product, int, error) {
	if q.SubCategory != "" && q.Category == "" {
		return nil, 0, apperrors.Validation("products.List", errors.New("please provide a category with the subCategory"))
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.store.List(ctx, q)
}

func (s *Service) Featured(ctx context.Context, page, limit int) (*FeaturedPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	items, total, err := s.store.List(ctx, ListQuery{FeaturedOnly: true, HideDeleted: true, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &FeaturedPage{
		Data:        items,
		TotalCount:  total,
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// Latest returns the newest live products of a category. An unknown
// category is NotFound.
func (s *Service) Latest(ctx context.Context, category string) ([]Product, error) {
	const op = "products.Latest"
	name := strings.TrimSpace(category)
	if name == "" {
		return nil, apperrors.Validation(op, errors.New("category is required"))
	}
	if s.categories != nil {
		c, err := s.categories.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		name = c.Name
	}
	list, _, err := s.store.List(ctx, ListQuery{
		Category:    name,
		HideDeleted: true,
		SortBy:      "createdAt",
		Desc:        true,
		Page:        1,
		Limit:       latestLimit,
	})
	return list, err
}

// Search returns every live product whose title or description contains
// query, ordered by title.
func (s *Service) Search(ctx context.Context, query string) ([]Product, error) {
	return s.search(ctx, "products.Search", query, 0)
}

// Suggestions is Search cut to the first few matches.
func (s *Service) Suggestions(ctx context.Context, query string) ([]Product, error) {
	return s.search(ctx, "products.Suggestions", query, suggestionLimit)
}

func (s *Service) search(ctx context.Context, op, query string, limit int) ([]Product, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return nil, apperrors.Validation(op, errors.New("search query is required"))
	}
	q := ListQuery{Text: text, HideDeleted: true, SortBy: "title"}
	if limit > 0 {
		q.Page, q.Limit = 1, limit
	}
	list, _, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Product{}
	}
	return list, nil
}

func (s *Service) Update(ctx context.Context, productID string, patch Patch) (*Product, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, apperrors.Validation("products.Update", err)
	}
	p, err := s.store.Update(ctx, productID, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, productID string) (*Product, error) {
	return s.setDeleted(ctx, productID, true)
}

func (s *Service) Undelete(ctx context.Context, productID string) (*Product, error) {
	return s.setDeleted(ctx, productID, false)
}

// ToggleFeatured flips the featured flag. A concurrent toggle makes this one
// fail with a conflict instead of silently undoing the other.
func (s *Service) ToggleFeatured(ctx context.Context, productID string) (*Product, error) {
	current, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.SetFeatured(ctx, productID, current.IsFeatured, !current.IsFeatured)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productID)
	return p, nil
}

func (s *Service) setDeleted(ctx context.Context, productID string, deleted bool) (*Product, error) {
	p, err := s.store.SetDeleted(ctx, productID, deleted)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productID)
	return p, nil
}

func (s *Service) invalidate(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, productID); err != nil {
		s.log.WarnContext(ctx, "product cache invalidation failed", "product_id", productID, "err", err)
	}
}
