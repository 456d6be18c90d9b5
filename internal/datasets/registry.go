// Package datasets governs the install/uninstall lifecycle of offline
// datasets: regions, guides and content packs.
package datasets

import (
	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
)

// Registry holds the static descriptors of installable datasets.
type Registry struct {
	byID  map[string]domain.Descriptor
	order []string
}

func NewRegistry(descriptors []domain.Descriptor) *Registry {
	r := &Registry{byID: make(map[string]domain.Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, ok := r.byID[d.ID]; ok {
			continue
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r
}

func (r *Registry) Get(id string) (domain.Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

func (r *Registry) List() []domain.Descriptor {
	out := make([]domain.Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// DefaultCatalog is the built-in dataset catalog. Import tooling that
// populates content stores is external; these descriptors only declare
// what can be installed and how large it claims to be.
func DefaultCatalog() []domain.Descriptor {
	return []domain.Descriptor{
		{
			ID:      "region-london",
			Name:    "London",
			Type:    domain.DatasetTypeRegion,
			Size:    180 * 1024 * 1024,
			Bounds:  &domain.Bounds{MinLat: 51.28, MinLon: -0.51, MaxLat: 51.69, MaxLon: 0.33},
			MinZoom: constants.TileMinZoom,
			MaxZoom: constants.TileMaxZoom,
		},
		{
			ID:      "region-edinburgh",
			Name:    "Edinburgh",
			Type:    domain.DatasetTypeRegion,
			Size:    95 * 1024 * 1024,
			Bounds:  &domain.Bounds{MinLat: 55.89, MinLon: -3.33, MaxLat: 55.99, MaxLon: -3.08},
			MinZoom: constants.TileMinZoom,
			MaxZoom: constants.TileMaxZoom,
		},
		{
			ID:   "guide-first-aid",
			Name: "First Aid Guide",
			Type: domain.DatasetTypeGuide,
			Size: 12 * 1024 * 1024,
			Resources: []domain.Resource{
				{Store: constants.StoreGuideContent, Key: "first-aid/manual", URL: "https://content.packrat.app/guides/first-aid.json"},
			},
		},
		{
			ID:   "pack-wiki-first-aid",
			Name: "First Aid Articles",
			Type: domain.DatasetTypePack,
			Size: 8 * 1024 * 1024,
			Articles: []domain.ArticleRef{
				{Store: constants.StoreHealth, ID: 1001, Slug: "wiki-hypothermia", Title: "Hypothermia"},
				{Store: constants.StoreHealth, ID: 1002, Slug: "wiki-burn", Title: "Burn"},
				{Store: constants.StoreHealth, ID: 1003, Slug: "wiki-frostbite", Title: "Frostbite"},
			},
		},
		{
			ID:   "pack-survival-essentials",
			Name: "Survival Essentials",
			Type: domain.DatasetTypePack,
			Size: 36 * 1024 * 1024,
			Resources: []domain.Resource{
				{Store: constants.StoreDataContent, Key: "survival/shelter", URL: "https://content.packrat.app/packs/shelter.json"},
				{Store: constants.StoreDataContent, Key: "survival/water", URL: "https://content.packrat.app/packs/water.json"},
			},
		},
	}
}
