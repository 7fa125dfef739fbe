package web

import (
	"net/http"

	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

type ensureAccountBody struct {
	PlanType string           `json:"plan_type"`
	DailyCap *decimal.Decimal `json:"daily_cap"`
}

// apiGetAccount handles GET /api/customers/{id}/account.
func (h *Handler) apiGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acct, err := h.svc.GetAccount(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, acct)
}

// apiEnsureAccount handles PUT /api/customers/{id}/account.
// Responds 201 when the account was created and 200 when an existing plan was updated.
func (h *Handler) apiEnsureAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body ensureAccountBody
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.svc.EnsureAccount(r.Context(), app.EnsureAccountRequest{
		CustomerID: id,
		PlanType:   body.PlanType,
		DailyCap:   body.DailyCap,
	})
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}

	status := http.StatusOK
	if res.Outcome == core.ProvisionCreated {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, res)
}
