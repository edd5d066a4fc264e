package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type exclusivePurchaseBody struct {
	DesignID    string `json:"designId"`
	BuyerID     string `json:"buyerId"`
	ArchitectID string `json:"architectId"`
}

func (a *API) contactAccess(w http.ResponseWriter, r *http.Request) {
	designID := chi.URLParam(r, "id")
	ok, err := a.contact.DirectContactAccess(r.Context(), principal(r), designID)
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"designId":      designID,
		"directContact": ok,
	})
}

func (a *API) recordExclusivePurchase(w http.ResponseWriter, r *http.Request) {
	var body exclusivePurchaseBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	evt, err := a.contact.RecordExclusivePurchase(r.Context(), principal(r), body.DesignID, body.BuyerID, body.ArchitectID)
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          evt.ID,
		"designId":    evt.DesignID,
		"buyerId":     evt.BuyerID,
		"architectId": evt.ArchitectID,
		"reason":      evt.Reason,
		"createdAt":   evt.CreatedAt.UTC().Format(time.RFC3339),
	})
}
