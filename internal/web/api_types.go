package web

// APICollection is the metadata view of a configured collection. The
// description is markdown rendered to HTML.
type APICollection struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	ItemType    string   `json:"itemType"`
}

// APICollectionsResponse wraps the collections listing.
type APICollectionsResponse struct {
	Collections []APICollection `json:"collections"`
}

// APICreatedResponse is the body returned after creating a feature.
type APICreatedResponse struct {
	ID string `json:"id"`
}
