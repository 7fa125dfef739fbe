package web

import (
	"net/http"

	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

// reconcileBody is the JSON body of POST /api/deliveries/{id}/reconcile.
// Quantities accept JSON numbers or strings.
type reconcileBody struct {
	FulfilledQuantity *decimal.Decimal `json:"fulfilled_quantity"`
	RequestedQuantity *decimal.Decimal `json:"requested_quantity"`
	Remarks           *string          `json:"remarks"`
}

// apiGetDelivery handles GET /api/deliveries/{id}.
func (h *Handler) apiGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDelivery(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, d)
}

// apiReconcileDelivery handles POST /api/deliveries/{id}/reconcile.
// A partial result (no price configured) is still 200; its status field says partial.
func (h *Handler) apiReconcileDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body reconcileBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.FulfilledQuantity == nil {
		writeError(w, r, "fulfilled_quantity is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ReconcileDelivery(r.Context(), app.ReconcileDeliveryRequest{
		TransactionID:     id,
		FulfilledQuantity: *body.FulfilledQuantity,
		RequestedQuantity: body.RequestedQuantity,
		Remarks:           body.Remarks,
	})
	if err != nil {
		var result any
		if res != nil {
			result = res
		}
		h.writeServiceError(w, r, err, result)
		return
	}
	writeJSON(w, res)
}

// apiListAdjustments handles GET /api/deliveries/{id}/adjustments.
func (h *Handler) apiListAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.ListAdjustments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, res)
}

// apiGetInventory handles GET /api/stations/{station}/products/{product}/inventory.
func (h *Handler) apiGetInventory(w http.ResponseWriter, r *http.Request) {
	stationID, ok := pathID(w, r, "station")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "product")
	if !ok {
		return
	}
	inv, err := h.svc.GetInventory(r.Context(), stationID, productID)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, inv)
}

// apiResolvePrice handles GET /api/stations/{station}/products/{product}/customers/{customer}/price.
func (h *Handler) apiResolvePrice(w http.ResponseWriter, r *http.Request) {
	key, ok := pathPriceKey(w, r)
	if !ok {
		return
	}
	price, err := h.svc.ResolvePrice(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	type response struct {
		core.PriceKey
		core.Price
	}
	writeJSON(w, response{PriceKey: key, Price: price})
}

// apiInvalidatePrice handles DELETE /api/stations/{station}/products/{product}/customers/{customer}/price.
// Price-table editors call it so previews stop serving the old amount.
func (h *Handler) apiInvalidatePrice(w http.ResponseWriter, r *http.Request) {
	key, ok := pathPriceKey(w, r)
	if !ok {
		return
	}
	if err := h.svc.InvalidatePrice(r.Context(), key); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathPriceKey(w http.ResponseWriter, r *http.Request) (core.PriceKey, bool) {
	stationID, ok := pathID(w, r, "station")
	if !ok {
		return core.PriceKey{}, false
	}
	productID, ok := pathID(w, r, "product")
	if !ok {
		return core.PriceKey{}, false
	}
	customerID, ok := pathID(w, r, "customer")
	if !ok {
		return core.PriceKey{}, false
	}
	return core.PriceKey{StationID: stationID, ProductID: productID, CustomerID: customerID}, true
}
