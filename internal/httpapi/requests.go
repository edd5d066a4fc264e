package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"archmarket.io/internal/workflow"
)

type createRequestBody struct {
	DesignID    string   `json:"designId"`
	Description string   `json:"description"`
	ScopeTags   []string `json:"scopeTags"`
}

type transitionBody struct {
	To                string `json:"to"`
	ProposedPrice     int64  `json:"proposedPrice"`
	DeliveryTimeDays  int    `json:"deliveryTimeDays"`
	RevisionsIncluded int    `json:"revisionsIncluded"`
	ArchitectNote     string `json:"architectNote"`
}

type modificationRequestJSON struct {
	ID                string   `json:"id"`
	DesignID          string   `json:"designId"`
	BuyerID           string   `json:"buyerId"`
	ArchitectID       string   `json:"architectId"`
	LicenseType       string   `json:"licenseType"`
	Description       string   `json:"description"`
	ScopeTags         []string `json:"scopeTags"`
	Status            string   `json:"status"`
	ProposedPrice     int64    `json:"proposedPrice,omitempty"`
	DeliveryTimeDays  int      `json:"deliveryTimeDays,omitempty"`
	RevisionsIncluded int      `json:"revisionsIncluded,omitempty"`
	ArchitectNote     string   `json:"architectNote,omitempty"`
	AllowedNext       []string `json:"allowedNext"`
	CreatedAt         string   `json:"createdAt"`
	UpdatedAt         string   `json:"updatedAt"`
}

func toJSON(m workflow.ModificationRequest) modificationRequestJSON {
	tags := m.ScopeTags
	if tags == nil {
		tags = []string{}
	}
	next := workflow.AllowedTransitions(m.Status)
	allowed := make([]string, 0, len(next))
	for _, s := range next {
		allowed = append(allowed, string(s))
	}
	return modificationRequestJSON{
		ID:                m.ID,
		DesignID:          m.DesignID,
		BuyerID:           m.BuyerID,
		ArchitectID:       m.ArchitectID,
		LicenseType:       string(m.LicenseType),
		Description:       m.Description,
		ScopeTags:         tags,
		Status:            string(m.Status),
		ProposedPrice:     m.ProposedPrice,
		DeliveryTimeDays:  m.DeliveryTimeDays,
		RevisionsIncluded: m.RevisionsIncluded,
		ArchitectNote:     m.ArchitectNote,
		AllowedNext:       allowed,
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) createModificationRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := a.workflow.Create(r.Context(), principal(r), workflow.CreateInput{
		DesignID:    body.DesignID,
		Description: body.Description,
		ScopeTags:   body.ScopeTags,
	})
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/modification-requests/%s", req.ID))
	writeJSON(w, http.StatusCreated, toJSON(req))
}

func (a *API) getModificationRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.workflow.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(req))
}

func (a *API) transitionModificationRequest(w http.ResponseWriter, r *http.Request) {
	var body transitionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := a.workflow.Transition(r.Context(), principal(r), chi.URLParam(r, "id"), workflow.TransitionInput{
		To:                workflow.Status(body.To),
		ProposedPrice:     body.ProposedPrice,
		DeliveryTimeDays:  body.DeliveryTimeDays,
		RevisionsIncluded: body.RevisionsIncluded,
		ArchitectNote:     body.ArchitectNote,
	})
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(req))
}

func (a *API) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := a.workflow.MarkPaid(r.Context(), id)
	if err != nil {
		a.respondDomainError(w, r, err)
		return
	}
	a.logger.Info("payment confirmed", "event", "payment_confirmed", "module", "httpapi",
		"request_id", RequestIDFromContext(r.Context()), "modification_request_id", id, "service", serviceSubject(r))
	writeJSON(w, http.StatusOK, toJSON(req))
}
