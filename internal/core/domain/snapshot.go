package domain

// VersionData is the business payload captured by a version. JSON names follow the catalog record so
// that diff paths read like "price.basePrice" or "inventory.lowStockThreshold".
type VersionData struct {
	Title       string         `json:"title" validate:"notblank"`
	Description string         `json:"description" validate:"notblank"`
	Price       Price          `json:"price"`
	Category    string         `json:"category" validate:"notblank"`
	Brand       string         `json:"brand" validate:"notblank"`
	Inventory   Inventory      `json:"inventory"`
	Media       Media          `json:"media"`
	SEO         SEO            `json:"seo"`
	Shipping    Shipping       `json:"shipping"`
	Attributes  []Attribute    `json:"attributes,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Status      string         `json:"status,omitempty"`
	Visibility  string         `json:"visibility,omitempty"`
	Variations  []string       `json:"variations,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Price holds the list price and optional sale price.
type Price struct {
	BasePrice float64  `json:"basePrice" validate:"gt=0"`
	SalePrice *float64 `json:"salePrice,omitempty" validate:"omitempty,gte=0"`
	Currency  string   `json:"currency,omitempty"`
}

// Inventory describes stock tracking for the record.
type Inventory struct {
	SKU               string `json:"sku" validate:"notblank"`
	Stock             int    `json:"stock" validate:"gte=0"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	TrackInventory    bool   `json:"trackInventory"`
}

// Image is a media image reference.
type Image struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

// MediaAsset is a video or document reference.
type MediaAsset struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Media groups the record's media references. Binary content lives in external object storage.
type Media struct {
	Images    []Image      `json:"images,omitempty"`
	Videos    []MediaAsset `json:"videos,omitempty"`
	Documents []MediaAsset `json:"documents,omitempty"`
}

// SEO carries search engine metadata.
type SEO struct {
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Slug            string   `json:"slug" validate:"notblank"`
}

// Dimensions are package dimensions in the catalog's length unit.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit,omitempty"`
}

// Shipping describes shipping attributes.
type Shipping struct {
	Weight        *float64    `json:"weight,omitempty"`
	Dimensions    *Dimensions `json:"dimensions,omitempty"`
	ShippingClass string      `json:"shippingClass,omitempty"`
}

// Attribute is a free-form name/value product attribute.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Clone returns a deep copy so versions never share mutable slices or maps.
func (d VersionData) Clone() VersionData {
	out := d
	if d.Price.SalePrice != nil {
		sale := *d.Price.SalePrice
		out.Price.SalePrice = &sale
	}
	out.Media.Images = append([]Image(nil), d.Media.Images...)
	out.Media.Videos = append([]MediaAsset(nil), d.Media.Videos...)
	out.Media.Documents = append([]MediaAsset(nil), d.Media.Documents...)
	out.SEO.Keywords = append([]string(nil), d.SEO.Keywords...)
	if d.Shipping.Weight != nil {
		weight := *d.Shipping.Weight
		out.Shipping.Weight = &weight
	}
	if d.Shipping.Dimensions != nil {
		dims := *d.Shipping.Dimensions
		out.Shipping.Dimensions = &dims
	}
	out.Attributes = append([]Attribute(nil), d.Attributes...)
	out.Tags = append([]string(nil), d.Tags...)
	out.Variations = append([]string(nil), d.Variations...)
	out.Metadata = cloneAnyMap(d.Metadata)
	return out
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		switch typed := v.(type) {
		case map[string]any:
			dst[k] = cloneAnyMap(typed)
		case []any:
			dst[k] = append([]any(nil), typed...)
		default:
			dst[k] = v
		}
	}
	return dst
}
