package extract

// Selectors are the CSS selectors used to read catalog pages.
type Selectors struct {
	NavRegion       string `mapstructure:"nav_region"`
	NavGroup        string `mapstructure:"nav_group"`
	GroupHeading    string `mapstructure:"group_heading"`
	CategoryLink    string `mapstructure:"category_link"`
	TileRegion      string `mapstructure:"tile_region"`
	Tile            string `mapstructure:"tile"`
	TileTitle       string `mapstructure:"tile_title"`
	TileAuthor      string `mapstructure:"tile_author"`
	TilePrice       string `mapstructure:"tile_price"`
	TileImage       string `mapstructure:"tile_image"`
	TileLink        string `mapstructure:"tile_link"`
	DetailMarker    string `mapstructure:"detail_marker"`
	DetailTitle     string `mapstructure:"detail_title"`
	DetailDesc      string `mapstructure:"detail_description"`
	Review          string `mapstructure:"review"`
	ReviewRating    string `mapstructure:"review_rating"`
	ReviewComment   string `mapstructure:"review_comment"`
	BreadcrumbCateg string `mapstructure:"breadcrumb_category"`
}

// DefaultSelectors matches the markup of the reference catalog.
func DefaultSelectors() Selectors {
	return Selectors{
		NavRegion:       `nav[aria-label="Main navigation"]`,
		NavGroup:        `nav[aria-label="Main navigation"] .nav-group`,
		GroupHeading:    `h2, h3, .nav-heading`,
		CategoryLink:    `a[href]`,
		TileRegion:      `.product-grid`,
		Tile:            `.product-card`,
		TileTitle:       `.product-card__title`,
		TileAuthor:      `.product-card__author`,
		TilePrice:       `.product-card__price`,
		TileImage:       `img`,
		TileLink:        `a[href]`,
		DetailMarker:    `.product-detail`,
		DetailTitle:     `.product-detail__title`,
		DetailDesc:      `.product-detail__description`,
		Review:          `.review`,
		ReviewRating:    `.review__rating`,
		ReviewComment:   `.review__comment`,
		BreadcrumbCateg: `nav[aria-label="Breadcrumb"] a[href*="/category/"]`,
	}
}

// ContentRegions lists the selectors whose presence shows a page is ready to extract.
func (s Selectors) ContentRegions() []string {
	return []string{s.NavRegion, s.TileRegion, s.DetailMarker}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.NavRegion, d.NavRegion)
	fill(&s.NavGroup, d.NavGroup)
	fill(&s.GroupHeading, d.GroupHeading)
	fill(&s.CategoryLink, d.CategoryLink)
	fill(&s.TileRegion, d.TileRegion)
	fill(&s.Tile, d.Tile)
	fill(&s.TileTitle, d.TileTitle)
	fill(&s.TileAuthor, d.TileAuthor)
	fill(&s.TilePrice, d.TilePrice)
	fill(&s.TileImage, d.TileImage)
	fill(&s.TileLink, d.TileLink)
	fill(&s.DetailMarker, d.DetailMarker)
	fill(&s.DetailTitle, d.DetailTitle)
	fill(&s.DetailDesc, d.DetailDesc)
	fill(&s.Review, d.Review)
	fill(&s.ReviewRating, d.ReviewRating)
	fill(&s.ReviewComment, d.ReviewComment)
	fill(&s.BreadcrumbCateg, d.BreadcrumbCateg)
	return s
}
