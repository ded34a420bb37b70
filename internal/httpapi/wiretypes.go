// wiretypes.go defines the JSON request/response bodies for every route.
//
// © 2025 kvshard authors. MIT License.
package httpapi

import "encoding/json"

const maxBatchSize = 100

// putRequest is PUT /v1/kv/{key}'s body.
type putRequest struct {
	Value  json.RawMessage `json:"value"`
	TTLSec *float64        `json:"ttlSec,omitempty"`
}

// putResponse is returned on a successful create/update.
type putResponse struct {
	Version   string `json:"version"`
	ExpiresAt *int64 `json:"expiresAt,omitempty"`
}

// getResponse is GET /v1/kv/{key}'s body. Meta fields are present only
// when includeMeta=true.
type getResponse struct {
	Value     json.RawMessage `json:"value"`
	Version   string          `json:"version"`
	CreatedAt *int64          `json:"createdAt,omitempty"`
	UpdatedAt *int64          `json:"updatedAt,omitempty"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

// batchGetRequest is POST /v1/kv/batch/get's body.
type batchGetRequest struct {
	Keys []string `json:"keys"`
}

type batchGetResponse struct {
	Hits   []getResponse `json:"hits"`
	Misses []string      `json:"misses"`
}

// batchSetItem is one entry of POST /v1/kv/batch/set's items array.
type batchSetItem struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	TTLSec      *float64        `json:"ttlSec,omitempty"`
	IfMatch     string          `json:"ifMatch,omitempty"`
	IfNoneMatch bool            `json:"ifNoneMatch,omitempty"`
}

type batchSetRequest struct {
	Items []batchSetItem `json:"items"`
}

type batchSetItemResponse struct {
	Key     string       `json:"key"`
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Error   *errorDetail `json:"error,omitempty"`
}

type batchSetResponse struct {
	Results []batchSetItemResponse `json:"results"`
}

// batchDeleteRequest is POST /v1/kv/batch/delete's body.
type batchDeleteRequest struct {
	Keys []string `json:"keys"`
}

type batchDeleteItemResponse struct {
	Key    string       `json:"key"`
	Status string       `json:"status"`
	Error  *errorDetail `json:"error,omitempty"`
}

type batchDeleteResponse struct {
	Results []batchDeleteItemResponse `json:"results"`
}

// incrRequest is POST /v1/kv/incr's body.
type incrRequest struct {
	Key   string `json:"key"`
	Delta int32  `json:"delta"`
}

type incrResponse struct {
	Value   float64 `json:"value"`
	Version string  `json:"version"`
}
