package catalogsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
	product "github.com/angelmondragon/catalogsync-backend/internal/products"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/db/models"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/outbox"
)

const testBaseURL = "https://www.costco.co.kr"

var saleTarget = Target{
	Code:         "SpecialPriceOffers",
	Name:         "Special Offers",
	UseSearchAPI: true,
	Binding:      TagBinding{Tag: "Sale"},
}

var groceryTarget = Target{
	Code:         "cos_4",
	Name:         "Grocery",
	UseSearchAPI: true,
	Catalog:      true,
}

// fakeStorefront serves listing pages by currentPage and detail payloads by
// product code.
type fakeStorefront struct {
	pages        map[int]string
	pageErrs     map[int]error
	details      map[string]string
	detailErrs   map[string]error
	detailCalls  []string
	listingCalls int
}

func (f *fakeStorefront) Get(_ context.Context, path string, params url.Values) (catalog.RawPayload, error) {
	if strings.HasSuffix(path, "/products/search") {
		f.listingCalls++
		page, _ := strconv.Atoi(params.Get("currentPage"))
		if err, ok := f.pageErrs[page]; ok {
			return catalog.RawPayload{}, err
		}
		body, ok := f.pages[page]
		if !ok {
			body = `{"products": []}`
		}
		return catalog.RawPayload{Body: []byte(body)}, nil
	}
	code := path[strings.LastIndex(path, "/")+1:]
	f.detailCalls = append(f.detailCalls, code)
	if err, ok := f.detailErrs[code]; ok {
		return catalog.RawPayload{}, err
	}
	body, ok := f.details[code]
	if !ok {
		return catalog.RawPayload{}, &catalog.FetchError{Status: 404, Message: "UnknownIdentifierError"}
	}
	return catalog.RawPayload{Body: []byte(body)}, nil
}

type item struct {
	Code     string
	Name     string
	Price    int64
	Base     int64
	OutStock bool
}

func (i item) json() string {
	doc := map[string]any{
		"code":  i.Code,
		"name":  i.Name,
		"price": map[string]any{"value": i.Price},
	}
	if i.Base > 0 {
		doc["basePrice"] = map[string]any{"value": i.Base}
	}
	if i.OutStock {
		doc["stock"] = map[string]any{"stockLevelStatus": "outOfStock"}
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}

func listingPage(items ...item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.json()
	}
	return `{"products": [` + strings.Join(parts, ",") + `]}`
}

type harness struct {
	conn      *gorm.DB
	repo      *product.Repository
	store     *fakeStorefront
	service   *Service
	tags      *TagManager
	zero      *ZeroPriceReconciler
	extractor *catalog.Extractor
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.ProductTag{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h := &harness{
		conn:  conn,
		repo:  product.NewRepository(conn),
		store: &fakeStorefront{pages: map[int]string{}, details: map[string]string{}},
		now:   time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	dbClient := db.FromConn(conn)
	emitter := outbox.NewEmitter(outbox.NewStore(conn), logg)
	endpoints := catalog.Endpoints{Site: "korea", PageSize: 100}
	h.extractor = catalog.NewExtractor(testBaseURL)

	walker, err := catalog.NewWalker(catalog.WalkerParams{
		Fetcher:   h.store,
		Endpoints: endpoints,
		MaxPages:  10,
		Logger:    logg,
	})
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	h.tags, err = NewTagManager(TagManagerParams{
		Repo:      h.repo,
		TxRunner:  dbClient,
		BatchSize: 2,
		Logger:    logg,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("new tag manager: %v", err)
	}
	h.service, err = NewService(ServiceParams{
		DB:        dbClient,
		Repo:      h.repo,
		Walker:    walker,
		Extractor: h.extractor,
		Tags:      h.tags,
		Outbox:    emitter,
		Logger:    logg,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.zero, err = NewZeroPriceReconciler(ZeroPriceParams{
		DB:        dbClient,
		Repo:      h.repo,
		Fetcher:   h.store,
		Endpoints: endpoints,
		Extractor: h.extractor,
		Outbox:    emitter,
		Limit:     10,
		Logger:    logg,
		Now:       clock,
	})
	if err != nil {
		t.Fatalf("new zero price reconciler: %v", err)
	}
	return h
}

// seed writes a product row as a previous sync would have left it.
func (h *harness) seed(t *testing.T, it item, extra product.Patch, tags ...string) {
	t.Helper()
	ctx := context.Background()
	rec := catalog.ProductRecord{
		ID:             it.Code,
		Name:           it.Name,
		PriceLocal:     it.Price,
		RawPrice:       strconv.FormatInt(it.Price, 10),
		StockStatus:    enums.StockStatusInStock,
		Category:       saleTarget.Name,
		SourceCategory: saleTarget.Code,
	}
	if it.Base > it.Price {
		base := it.Base
		rec.OriginalPriceLocal = &base
		rec.DiscountPercent = catalog.DiscountPercent(it.Price, &base)
	}
	seedAt := h.now.Add(-24 * time.Hour)
	patch := product.ContentPatch(rec).
		Set(product.ColStatus, enums.ProductStatusActive).
		Set(product.ColCreatedAt, seedAt).
		Set(product.ColUpdatedAt, seedAt)
	for k, v := range extra {
		patch[k] = v
	}
	if err := h.repo.UpsertMerge(ctx, it.Code, patch); err != nil {
		t.Fatalf("seed %s: %v", it.Code, err)
	}
	for _, tag := range tags {
		if _, err := h.repo.AddTag(ctx, []string{it.Code}, tag, seedAt); err != nil {
			t.Fatalf("seed tag %s on %s: %v", tag, it.Code, err)
		}
	}
}

func (h *harness) product(t *testing.T, id string) *catalog.ProductRecord {
	t.Helper()
	rec, err := h.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return rec
}

func (h *harness) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	if err := h.conn.Where("event_type = ?", eventType).Order("aggregate_id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	return rows
}

func (h *harness) tagHolders(t *testing.T, tag string) []string {
	t.Helper()
	ids, err := h.repo.ListIDsByTag(context.Background(), tag)
	if err != nil {
		t.Fatalf("list tag holders: %v", err)
	}
	return ids
}
