package geo

import geojson "github.com/paulmach/go.geojson"

// ClusterQuery is the body of POST /v1/clusters.
type ClusterQuery struct {
	Polygon   *geojson.Geometry `json:"polygon"`
	Precision int               `json:"precision"`
	Status    string            `json:"status,omitempty"`
	Limit     int               `json:"limit"`
	Filters   Filters           `json:"filters"`
}

// EntityQuery is the body of POST /v1/entities.  It carries no clustering
// parameters.
type EntityQuery struct {
	Polygon *geojson.Geometry `json:"polygon"`
	Status  string            `json:"status,omitempty"`
	Limit   int               `json:"limit"`
	Filters Filters           `json:"filters"`
}

// ClusterPage is the response of POST /v1/clusters.
type ClusterPage struct {
	Clusters   []Cluster `json:"clusters"`
	TotalCount int       `json:"total_count"`
}

// EntityPage is the response of POST /v1/entities.
type EntityPage struct {
	Entities   []GeoEntity `json:"entities"`
	TotalCount int         `json:"total_count"`
}

//Personal.AI order the ending
