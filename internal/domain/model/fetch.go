package model

// ResultShape tags the response shape of a Wild Apricot list endpoint.
// The shape is detected once, on the first page of a fetch.
type ResultShape int

const (
	// ShapeList is a bare JSON array (e.g., EventRegistrations).
	ShapeList ResultShape = iota
	// ShapeObject is an object with exactly one list-valued field, the
	// collection key, plus sibling scalar metadata (e.g., {"Events": [...], "Count": N}).
	ShapeObject
	// ShapeRaw is an object with zero or several list-valued fields. Such
	// responses are not paginated collections and are returned as-is.
	ShapeRaw
)

// PageRequest describes one logical fetch against a Wild Apricot list
// endpoint. The fetcher appends $top/$skip as it walks pages.
type PageRequest struct {
	// Resource is the API resource name, e.g. "Events" or "Contacts".
	Resource string
	// Filter is the optional $filter predicate.
	Filter string
	// Select is the optional $select field list.
	Select string
	// EventID scopes registration resources to one owning event.
	EventID int64
}

// FetchResult is the accumulated outcome of walking every page of a request.
// For ShapeObject the collection field holds the concatenation of all pages
// and any Count field has been corrected to the accumulated length.
type FetchResult struct {
	Shape         ResultShape
	Items         []map[string]any // populated for ShapeList
	Object        map[string]any   // populated for ShapeObject and ShapeRaw
	CollectionKey string           // populated for ShapeObject
}

// Records returns the accumulated record list regardless of shape.
// ShapeRaw has no record list and yields nil.
func (r FetchResult) Records() []map[string]any {
	switch r.Shape {
	case ShapeList:
		return r.Items
	case ShapeObject:
		items, _ := r.Object[r.CollectionKey].([]map[string]any)
		return items
	default:
		return nil
	}
}
