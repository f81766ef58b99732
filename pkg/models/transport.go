package models

// ReplaceItemsRequest carries the records of a freshly executed query or page
type ReplaceItemsRequest struct {
	Items []Item `json:"items" binding:"required"`
}

// LoadRequest names the items to load; an empty list means every item in the registry
type LoadRequest struct {
	IDs []string `json:"ids,omitempty"`
}

// SortCriterion is one key of a (possibly multi-key) sort
type SortCriterion struct {
	Strategy   string `json:"strategy" binding:"required"`
	Descending bool   `json:"descending,omitempty"`
}

// SortRequest represents a request to order the current registry
type SortRequest struct {
	Criteria        []SortCriterion `json:"criteria" binding:"required,min=1,dive"`
	ReferenceLabel  string          `json:"reference_label,omitempty"`
	ReferenceIDs    []string        `json:"reference_ids,omitempty"`
	ReferenceVector []float64       `json:"reference_vector,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ItemStatus is the externally visible view of a registry entry
type ItemStatus struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	State      LoadState `json:"state"`
	Generation uint64    `json:"generation"`
	Source     string    `json:"source,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
}

// ItemsResponse lists registry entries in query order
type ItemsResponse struct {
	Epoch uint64       `json:"epoch"`
	Items []ItemStatus `json:"items"`
}

// OrderingResponse is the result of a sort request
type OrderingResponse struct {
	IDs     []string `json:"ids"`
	Pending []string `json:"pending,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// StateChangeEvent is streamed to clients as items change state
type StateChangeEvent struct {
	ID        string    `json:"id"`
	State     LoadState `json:"state"`
	Error     string    `json:"error,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
}
