package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/hypercart/internal/partition"
	"github.com/shehryarbajwa/hypercart/internal/session"
)

// Partitions lists and wipes stored account profiles
type Partitions interface {
	List() ([]partition.Partition, error)
	Remove(id string) error
}

// PartitionHandler holds dependencies for partition HTTP handlers
type PartitionHandler struct {
	partitions Partitions
	sessions   interface {
		Get(id string) (*session.Session, bool)
	}
}

// NewPartitionHandler creates a new partition HTTP handler
func NewPartitionHandler(partitions Partitions, sessions Sessions) *PartitionHandler {
	return &PartitionHandler{
		partitions: partitions,
		sessions:   sessions,
	}
}

// ListPartitions handles GET /v1/partitions
func (h *PartitionHandler) ListPartitions(w http.ResponseWriter, r *http.Request) {
	list, err := h.partitions.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []partition.Partition{}
	}
	writeJSON(w, http.StatusOK, list)
}

// DeletePartition handles DELETE /v1/partitions/{id}. A partition in use by a
// live session cannot be wiped.
func (h *PartitionHandler) DeletePartition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, live := h.sessions.Get(id); live {
		http.Error(w, "Session is still open", http.StatusConflict)
		return
	}

	if err := h.partitions.Remove(id); err != nil {
		if errors.Is(err, partition.ErrInvalidID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
