// Package dtos defines the wire-level request and error shapes of the
// division API.
package dtos

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type CreateDivisionRequest struct {
	Code       string  `json:"code" validate:"required,max=50"`
	Name       string  `json:"name" validate:"required,max=100"`
	ShortName  *string `json:"short_name" validate:"omitempty,max=100"`
	ParentID   *int64  `json:"parent_id"`
	SortOrder  int     `json:"sort_order" validate:"gte=0"`
	IsInternal bool    `json:"is_internal"`
	// IsActive defaults to true when absent.
	IsActive *bool `json:"is_active"`
}

func (r *CreateDivisionRequest) Validate() error {
	return validate.Struct(r)
}

type UpdateDivisionRequest struct {
	Code       *string        `json:"code" validate:"omitempty,max=50"`
	Name       *string        `json:"name" validate:"omitempty,max=100"`
	ShortName  OptionalString `json:"short_name"`
	ParentID   OptionalInt64  `json:"parent_id"`
	SortOrder  *int           `json:"sort_order"`
	IsInternal *bool          `json:"is_internal"`
	IsActive   *bool          `json:"is_active"`
}

func (r *UpdateDivisionRequest) Validate() error {
	return validate.Struct(r)
}

// OptionalString distinguishes an absent JSON field from an explicit null.
type OptionalString struct {
	Set   bool    `json:"-"`
	Value *string `json:"-"`
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// OptionalInt64 distinguishes an absent JSON field from an explicit null.
type OptionalInt64 struct {
	Set   bool   `json:"-"`
	Value *int64 `json:"-"`
}

func (o *OptionalInt64) UnmarshalJSON(data []byte) error {
	o.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}
