package client

import (
	"context"
	"fmt"

	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

const (
	clustersPath = "/v1/clusters"
	entitiesPath = "/v1/entities"
)

// SpatialClient queries clusters and individual listings inside a polygon.
// It satisfies the engine's spatial service contract.
type SpatialClient struct {
	client *Client
}

// GetClusters posts q to /v1/clusters.
func (s *SpatialClient) GetClusters(ctx context.Context, q geo.ClusterQuery) (*geo.ClusterPage, error) {
	if q.Polygon == nil {
		return nil, errors.InvalidParam("cluster query requires a polygon")
	}
	if q.Limit <= 0 {
		return nil, errors.InvalidParam(fmt.Sprintf("cluster limit must be positive, got %d", q.Limit))
	}

	var page geo.ClusterPage
	if err := s.client.post(ctx, clustersPath, q, &page); err != nil {
		return nil, err
	}
	for i, c := range page.Clusters {
		if c.Count < 1 {
			return nil, errors.New(errors.ErrCodeMalformedPayload, "cluster with non-positive count").
				WithDetail(fmt.Sprintf("index=%d count=%d", i, c.Count))
		}
	}
	return &page, nil
}

// GetEntities posts q to /v1/entities.
func (s *SpatialClient) GetEntities(ctx context.Context, q geo.EntityQuery) (*geo.EntityPage, error) {
	if q.Polygon == nil {
		return nil, errors.InvalidParam("entity query requires a polygon")
	}
	if q.Limit <= 0 {
		return nil, errors.InvalidParam(fmt.Sprintf("entity limit must be positive, got %d", q.Limit))
	}

	var page geo.EntityPage
	if err := s.client.post(ctx, entitiesPath, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

//Personal.AI order the ending
