package catalogsync

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/catalogsync-backend/internal/catalog"
)

// TagBinding names the display tag a category grants to the products it
// lists. Companions are granted and revoked alongside Tag.
type TagBinding struct {
	Tag        string   `yaml:"tag" validate:"required_with=Companions"`
	Companions []string `yaml:"companions" validate:"dive,required"`
}

// Tags returns Tag followed by its companions.
func (b TagBinding) Tags() []string {
	out := make([]string, 0, 1+len(b.Companions))
	out = append(out, b.Tag)
	for _, c := range b.Companions {
		if c != b.Tag {
			out = append(out, c)
		}
	}
	return out
}

// Target is one category the jobs sync on every run.
type Target struct {
	Code         string     `yaml:"code" validate:"required"`
	Name         string     `yaml:"name" validate:"required"`
	URL          string     `yaml:"url" validate:"omitempty,startswith=/"`
	UseSearchAPI bool       `yaml:"use_search_api"`
	Binding      TagBinding `yaml:"binding"`
	// Catalog targets list a whole storefront category. Only their complete
	// walks move unlisted products to pendingReview; a promotion listing
	// dropping a product just revokes its tag.
	Catalog bool `yaml:"catalog"`
	// PriceOnly targets are walked by the price pass but never create products.
	PriceOnly bool `yaml:"price_only"`
}

// Category converts the target for the walker.
func (t Target) Category() catalog.Category {
	return catalog.Category{
		Code:         t.Code,
		Name:         t.Name,
		URL:          t.URL,
		UseSearchAPI: t.UseSearchAPI || t.URL == "",
	}
}

type targetsFile struct {
	Targets []Target `yaml:"targets" validate:"required,min=1,dive"`
}

// catalogCategories are the top level storefront categories, in walk order.
var catalogCategories = []struct{ code, name, slug string }{
	{"cos_1", "Electronics", "Electronics"},
	{"cos_2", "Computers", "Computers"},
	{"cos_3", "Appliances", "Appliances"},
	{"cos_4", "Grocery", "Grocery"},
	{"cos_5", "Health", "Health-Beauty"},
	{"cos_6", "Home", "Home-Kitchen-Patio-Garden"},
	{"cos_7", "Baby", "Baby-Kids-Toys"},
	{"cos_8", "Sports", "Sports-Outdoor"},
	{"cos_9", "Clothing", "Clothing-Luggage"},
	{"cos_10", "Office", "Office-Products"},
}

// DefaultTargets are the catalog categories followed by the promotion
// listings that grant display tags.
func DefaultTargets() []Target {
	targets := make([]Target, 0, len(catalogCategories)+4)
	for _, c := range catalogCategories {
		targets = append(targets, Target{
			Code:         c.code,
			Name:         c.name,
			URL:          "/" + c.slug + "/c/" + c.code,
			UseSearchAPI: true,
			Catalog:      true,
		})
	}
	return append(targets,
		Target{
			Code:         "SpecialPriceOffers",
			Name:         "Special Offers",
			URL:          "/Special-Price-Offers/c/SpecialPriceOffers",
			UseSearchAPI: true,
			Binding:      TagBinding{Tag: "Sale"},
		},
		Target{
			Code:         "BuyersPick",
			Name:         "Buyers Pick",
			URL:          "/Buyers-Pick/c/BuyersPick",
			UseSearchAPI: true,
			Binding:      TagBinding{Tag: "Featured", Companions: []string{"Trend"}},
		},
		Target{
			Code:         "whatsnew",
			Name:         "New Arrivals",
			URL:          "/c/whatsnew",
			UseSearchAPI: true,
			Binding:      TagBinding{Tag: "New"},
		},
		Target{
			Code:         "ks_all",
			Name:         "Kirkland Signature",
			URL:          "/Kirkland-Signature/c/ks_all",
			UseSearchAPI: true,
			Binding:      TagBinding{Tag: "Kirkland Signature"},
		},
	)
}

// LoadTargets reads targets from a YAML file, falling back to DefaultTargets
// when path is empty.
func LoadTargets(path string) ([]Target, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTargets(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return ParseTargets(raw)
}

// ParseTargets decodes and validates a targets document.
func ParseTargets(raw []byte) ([]Target, error) {
	var doc targetsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid targets: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Targets))
	for _, t := range doc.Targets {
		if _, dup := seen[t.Code]; dup {
			return nil, fmt.Errorf("duplicate target %q", t.Code)
		}
		if !t.Catalog && t.Binding.Tag == "" {
			return nil, fmt.Errorf("target %q is neither a catalog category nor a tag listing", t.Code)
		}
		seen[t.Code] = struct{}{}
	}
	return doc.Targets, nil
}

// FindTarget looks a target up by category code.
func FindTarget(targets []Target, code string) (Target, bool) {
	for _, t := range targets {
		if t.Code == code {
			return t, true
		}
	}
	return Target{}, false
}
