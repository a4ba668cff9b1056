package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// RawPayload is a response body already validated as JSON.
type RawPayload struct {
	Body []byte
}

func (p RawPayload) Root() gjson.Result {
	return gjson.ParseBytes(p.Body)
}

// Fetcher performs one GET against the storefront. Implementations return
// *FetchError or *ParseError.
type Fetcher interface {
	Get(ctx context.Context, path string, params url.Values) (RawPayload, error)
}

// Endpoints builds storefront request paths.
type Endpoints struct {
	Site     string
	PageSize int
}

const defaultPageSize = 100

// ListingRequest returns the request for page (zero based) of a category.
func (e Endpoints) ListingRequest(cat Category, page int) (string, url.Values) {
	params := url.Values{}
	if cat.UseSearchAPI || cat.URL == "" {
		pageSize := e.PageSize
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}
		params.Set("fields", "FULL")
		params.Set("query", ":relevance:allCategories:"+cat.Code)
		params.Set("pageSize", strconv.Itoa(pageSize))
		params.Set("currentPage", strconv.Itoa(page))
		return fmt.Sprintf("/rest/v2/%s/products/search", e.Site), params
	}
	params.Set("q", ":relevance")
	params.Set("page", strconv.Itoa(page))
	return cat.URL, params
}

// DetailRequest returns the product detail request for one code.
func (e Endpoints) DetailRequest(code string) (string, url.Values) {
	params := url.Values{}
	params.Set("fields", "FULL")
	return fmt.Sprintf("/rest/v2/%s/products/%s", e.Site, url.PathEscape(code)), params
}
