package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Source is one external, tenant-specific REST API registered for dynamic
// invocation. Rows are written only by the sync process.
type Source struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	BaseURL   string    `gorm:"size:2048;not null" json:"base_url"`
	SpecURL   string    `gorm:"size:2048;not null" json:"spec_url"`
	RawSpec   string    `gorm:"type:text" json:"-"` // fetched document, verbatim
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName maps Source to the api_sources table.
func (Source) TableName() string { return "api_sources" }

// Operation is one path+method pair on a Source, with derived selection
// metadata. Uniqueness key is (source_id, operation_id); re-syncs update in
// place.
type Operation struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SourceID       uint           `gorm:"not null;uniqueIndex:idx_source_operation" json:"source_id"`
	OperationID    string         `gorm:"size:255;not null;uniqueIndex:idx_source_operation" json:"operation_id"`
	Method         string         `gorm:"size:10;not null" json:"method"`
	PathTemplate   string         `gorm:"size:2048;not null" json:"path_template"`
	Summary        string         `gorm:"type:text" json:"summary"`
	Tag            *string        `gorm:"size:255" json:"tag,omitempty"` // display grouping only
	Parameters     ParameterSpecs `gorm:"type:text" json:"parameters,omitempty"`
	RequestBodyRef *string        `gorm:"size:255" json:"request_body_ref,omitempty"`

	// Classification columns, always recomputed by Classify during sync.
	Resource      *string `gorm:"size:255;index" json:"resource,omitempty"`
	Action        Action  `gorm:"size:32;index" json:"action"`
	HasPathParams bool    `gorm:"index" json:"has_path_params"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Source *Source `gorm:"foreignKey:SourceID" json:"-"`
}

// TableName maps Operation to the api_operations table.
func (Operation) TableName() string { return "api_operations" }

// HasRequestBody reports whether the operation declared a JSON request body.
func (o *Operation) HasRequestBody() bool {
	return o.RequestBodyRef != nil && *o.RequestBodyRef != ""
}

// ParameterSpec describes one declared parameter of an operation.
type ParameterSpec struct {
	Name     string `json:"name"`
	In       string `json:"in"` // path, query, header
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
}

// ParameterSpecs is stored as a JSON column so the schema stays portable
// across postgres and sqlite.
type ParameterSpecs []ParameterSpec

// Value implements driver.Valuer.
func (p ParameterSpecs) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameter specs: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *ParameterSpecs) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported parameter specs column type %T", value)
	}
	if len(data) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(data, p)
}
