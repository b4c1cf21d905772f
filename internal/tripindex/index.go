// Package tripindex keeps an Elasticsearch index of trips for full-text
// search within a user's own trips.
package tripindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultSearchSize = 20

var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"owner_id":     map[string]interface{}{"type": "keyword"},
			"status":       map[string]interface{}{"type": "keyword"},
			"title":        map[string]interface{}{"type": "text"},
			"prompt":       map[string]interface{}{"type": "text"},
			"destinations": map[string]interface{}{"type": "text"},
			"activities":   map[string]interface{}{"type": "text"},
			"created_at":   map[string]interface{}{"type": "date"},
			"updated_at":   map[string]interface{}{"type": "date"},
		},
	},
}

type document struct {
	OwnerID      string    `json:"owner_id"`
	Status       string    `json:"status"`
	Title        string    `json:"title"`
	Prompt       string    `json:"prompt"`
	Destinations []string  `json:"destinations,omitempty"`
	Activities   []string  `json:"activities,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDocument(trip *models.Trip) document {
	return document{
		OwnerID:      trip.OwnerID,
		Status:       string(trip.Status),
		Title:        trip.Title,
		Prompt:       trip.Prompt,
		Destinations: trip.Details.Destinations,
		Activities:   trip.Details.Activities,
		CreatedAt:    trip.CreatedAt,
		UpdatedAt:    trip.UpdatedAt,
	}
}

// Index writes and queries trip documents. A nil Index ignores writes.
type Index struct {
	client *elasticsearch.Client
	name   string
	logger logger.Logger
}

func New(client *elasticsearch.Client, name string, log logger.Logger) *Index {
	if name == "" {
		name = "trips"
	}
	return &Index{
		client: client,
		name:   name,
		logger: log.With(map[string]interface{}{"component": "tripindex", "index": name}),
	}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (x *Index) EnsureIndex(ctx context.Context) error {
	if x == nil {
		return nil
	}
	res, err := esapi.IndicesExistsRequest{Index: []string{x.name}}.Do(ctx, x.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError("indices.exists", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := json.Marshal(indexMapping)
	res, err = esapi.IndicesCreateRequest{Index: x.name, Body: bytes.NewReader(body)}.Do(ctx, x.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError("indices.create", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return apperrors.NewSearchQueryFailedError("indices.create", fmt.Errorf("status %s", res.Status()))
	}

	x.logger.Info("search index created", nil)
	return nil
}

// Put indexes trip, replacing any previous document.
func (x *Index) Put(ctx context.Context, trip *models.Trip) error {
	if x == nil {
		return nil
	}
	body, err := json.Marshal(toDocument(trip))
	if err != nil {
		return apperrors.NewSearchQueryFailedError("index", err)
	}

	res, err := esapi.IndexRequest{
		Index:      x.name,
		DocumentID: trip.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, x.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError("index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.NewSearchQueryFailedError("index", fmt.Errorf("status %s: %s", res.Status(), readBody(res.Body)))
	}
	return nil
}

// Delete removes a trip document. Missing documents are not an error.
func (x *Index) Delete(ctx context.Context, tripID string) error {
	if x == nil {
		return nil
	}
	res, err := esapi.DeleteRequest{Index: x.name, DocumentID: tripID}.Do(ctx, x.client)
	if err != nil {
		return apperrors.NewSearchQueryFailedError("delete", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return apperrors.NewSearchQueryFailedError("delete", fmt.Errorf("status %s", res.Status()))
	}
	return nil
}

// Search returns the ids of ownerID's trips matching query, best first.
func (x *Index) Search(ctx context.Context, ownerID, query string, size int) ([]string, error) {
	if size <= 0 || size > 100 {
		size = defaultSearchSize
	}
	body, _ := json.Marshal(buildSearchQuery(ownerID, query))

	res, err := esapi.SearchRequest{
		Index:  []string{x.name},
		Body:   bytes.NewReader(body),
		Size:   &size,
		Source: []string{"false"},
	}.Do(ctx, x.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError("search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError("search", fmt.Errorf("status %s: %s", res.Status(), readBody(res.Body)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchQueryFailedError("search", err)
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func buildSearchQuery(ownerID, query string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":     query,
							"fields":    []string{"title^3", "destinations^2", "prompt", "activities"},
							"type":      "best_fields",
							"fuzziness": "AUTO",
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"owner_id": ownerID}},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"updated_at": "desc"}},
	}
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}
