// handlers.go implements the per-route request parsing, engine calls, and
// response framing. Wire-level validation (key length, batch size, header
// parsing) lives here; the engine never sees a request the boundary has
// not already validated.
//
// © 2025 kvshard authors. MIT License.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Voskan/kvshard/pkg/kvengine"
	"github.com/Voskan/kvshard/pkg/kvvalue"
)

func validateKey(key string) *kvengine.Error {
	if len(key) < 1 || len(key) > 250 {
		return kvengine.ErrBadRequest("key length must be 1..250 bytes, got %d", len(key))
	}
	return nil
}

func decodeJSONBody(r *http.Request, dst any) *kvengine.Error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return kvengine.ErrBadRequest("invalid request body: %v", err)
	}
	return nil
}

// ttlFromSec converts a wire ttlSec into a time.Duration. A ttlSec of 0
// is ambiguous between "no TTL" and "expire immediately", so it is
// rejected outright; omit the field to store without expiry.
func ttlFromSec(ttlSec *float64) (time.Duration, *kvengine.Error) {
	if ttlSec == nil {
		return 0, nil
	}
	if *ttlSec == 0 {
		return 0, kvengine.ErrBadRequest("ttlSec must be omitted (no TTL) or > 0; 0 is rejected")
	}
	if *ttlSec < 0 {
		return 0, kvengine.ErrBadRequest("ttlSec must be positive, got %v", *ttlSec)
	}
	return time.Duration(*ttlSec * float64(time.Second)), nil
}

func snapshotToGetResponse(snap kvengine.Snapshot, includeMeta bool) getResponse {
	wire, _ := snap.Value.MarshalJSON()
	resp := getResponse{Value: wire, Version: snap.Version}
	if includeMeta {
		resp.CreatedAt = &snap.CreatedAt
		resp.UpdatedAt = &snap.UpdatedAt
		if snap.ExpiresAt != 0 {
			resp.ExpiresAt = &snap.ExpiresAt
		}
	}
	return resp
}

// handleSet implements PUT /v1/kv/{key}. If-None-Match: * makes the write
// create-only; If-Match makes it a conditional update.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if kerr := validateKey(key); kerr != nil {
		writeError(w, kerr)
		return
	}

	var req putRequest
	if derr := decodeJSONBody(r, &req); derr != nil {
		writeError(w, derr)
		return
	}

	val, verr := kvvalue.Infer(req.Value)
	if verr != nil {
		writeError(w, kvengine.ErrBadRequest("%v", verr))
		return
	}

	ttl, terr := ttlFromSec(req.TTLSec)
	if terr != nil {
		writeError(w, terr)
		return
	}

	ifNoneMatch := r.Header.Get("If-None-Match") == "*"
	ifMatch := r.Header.Get("If-Match")

	res, serr := s.store.Set(r.Context(), kvengine.SetInput{
		Key: key, Value: val, TTL: ttl, IfMatch: ifMatch, IfNoneMatch: ifNoneMatch,
	})
	if serr != nil {
		writeError(w, serr)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	var expiresAt *int64
	if res.ExpiresAt != 0 {
		expiresAt = &res.ExpiresAt
	}
	writeJSON(w, status, putResponse{Version: res.Version, ExpiresAt: expiresAt})
}

// handleGet implements GET /v1/kv/{key}?includeMeta=true|false.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if kerr := validateKey(key); kerr != nil {
		writeError(w, kerr)
		return
	}

	includeMeta, _ := strconv.ParseBool(r.URL.Query().Get("includeMeta"))

	snap, gerr := s.store.Get(r.Context(), key)
	if gerr != nil {
		writeError(w, gerr)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToGetResponse(snap, includeMeta))
}

// handleDelete implements DELETE /v1/kv/{key} with optional If-Match.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if kerr := validateKey(key); kerr != nil {
		writeError(w, kerr)
		return
	}

	ifMatch := r.Header.Get("If-Match")
	if derr := s.store.Delete(r.Context(), key, ifMatch); derr != nil {
		writeError(w, derr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBatchGet implements POST /v1/kv/batch/get.
func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	var req batchGetRequest
	if derr := decodeJSONBody(r, &req); derr != nil {
		writeError(w, derr)
		return
	}
	if len(req.Keys) > maxBatchSize {
		writeError(w, kvengine.ErrBadRequest("batch size %d exceeds limit of %d", len(req.Keys), maxBatchSize))
		return
	}
	for _, k := range req.Keys {
		if kerr := validateKey(k); kerr != nil {
			writeError(w, kerr)
			return
		}
	}

	res, berr := s.store.BatchGet(r.Context(), req.Keys)
	if berr != nil {
		writeError(w, berr)
		return
	}

	hits := make([]getResponse, len(res.Hits))
	for i, snap := range res.Hits {
		hits[i] = snapshotToGetResponse(snap, true)
	}
	misses := res.Misses
	if misses == nil {
		misses = []string{}
	}
	writeJSON(w, http.StatusOK, batchGetResponse{Hits: hits, Misses: misses})
}

// handleBatchSet implements POST /v1/kv/batch/set.
func (s *Server) handleBatchSet(w http.ResponseWriter, r *http.Request) {
	var req batchSetRequest
	if derr := decodeJSONBody(r, &req); derr != nil {
		writeError(w, derr)
		return
	}
	if len(req.Items) > maxBatchSize {
		writeError(w, kvengine.ErrBadRequest("batch size %d exceeds limit of %d", len(req.Items), maxBatchSize))
		return
	}

	inputs := make([]kvengine.SetInput, len(req.Items))
	for i, item := range req.Items {
		if kerr := validateKey(item.Key); kerr != nil {
			writeError(w, kerr)
			return
		}
		val, verr := kvvalue.Infer(item.Value)
		if verr != nil {
			writeError(w, kvengine.ErrBadRequest("item %q: %v", item.Key, verr))
			return
		}
		ttl, terr := ttlFromSec(item.TTLSec)
		if terr != nil {
			writeError(w, terr)
			return
		}
		inputs[i] = kvengine.SetInput{
			Key: item.Key, Value: val, TTL: ttl,
			IfMatch: item.IfMatch, IfNoneMatch: item.IfNoneMatch,
		}
	}

	results, berr := s.store.BatchSet(r.Context(), inputs)
	if berr != nil {
		writeError(w, berr)
		return
	}

	out := make([]batchSetItemResponse, len(results))
	for i, res := range results {
		item := batchSetItemResponse{Key: res.Key, Status: res.Status, Version: res.Version}
		if res.Error != nil {
			item.Error = &errorDetail{Code: string(res.Error.Kind), Message: res.Error.Message, Details: res.Error.Details}
		}
		out[i] = item
	}
	writeJSON(w, http.StatusOK, batchSetResponse{Results: out})
}

// handleBatchDelete implements POST /v1/kv/batch/delete.
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if derr := decodeJSONBody(r, &req); derr != nil {
		writeError(w, derr)
		return
	}
	if len(req.Keys) > maxBatchSize {
		writeError(w, kvengine.ErrBadRequest("batch size %d exceeds limit of %d", len(req.Keys), maxBatchSize))
		return
	}
	for _, k := range req.Keys {
		if kerr := validateKey(k); kerr != nil {
			writeError(w, kerr)
			return
		}
	}

	results, berr := s.store.BatchDelete(r.Context(), req.Keys)
	if berr != nil {
		writeError(w, berr)
		return
	}

	out := make([]batchDeleteItemResponse, len(results))
	for i, res := range results {
		item := batchDeleteItemResponse{Key: res.Key, Status: res.Status}
		if res.Error != nil {
			item.Error = &errorDetail{Code: string(res.Error.Kind), Message: res.Error.Message, Details: res.Error.Details}
		}
		out[i] = item
	}
	writeJSON(w, http.StatusOK, batchDeleteResponse{Results: out})
}

// handleIncr implements POST /v1/kv/incr.
func (s *Server) handleIncr(w http.ResponseWriter, r *http.Request) {
	var req incrRequest
	if derr := decodeJSONBody(r, &req); derr != nil {
		writeError(w, derr)
		return
	}
	if kerr := validateKey(req.Key); kerr != nil {
		writeError(w, kerr)
		return
	}

	res, ierr := s.store.Increment(r.Context(), req.Key, req.Delta)
	if ierr != nil {
		writeError(w, ierr)
		return
	}
	writeJSON(w, http.StatusOK, incrResponse{Value: res.Value, Version: res.Version})
}
