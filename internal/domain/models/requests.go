package models

import "time"

// Requests for the band HTTP endpoints.

type ReadingsRequest struct {
	Readings map[string]float64 `json:"readings" validate:"required,min=1,dive,keys,required,endkeys"`
	TS       *time.Time         `json:"ts"`
}

type SignalRequest struct {
	Name string `param:"name" validate:"required,max=64"`
}

// LatestEventsRequest narrows the listing to one signal when Signal is set.
type LatestEventsRequest struct {
	Signal string `query:"signal" json:"signal" validate:"omitempty,max=64"`
}
