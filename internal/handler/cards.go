package handler

import (
	"context"
	"net/http"

	"github.com/Dan9191/bank-cards/internal/models"
)

// CreateCard handles card issuance
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	card, err := h.cards.CreateCard(r.Context(), req.UserID, req.Number, req.ExpiryDate.Time)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCardResponse(card))
}

// BlockCard handles administrative blocking
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.cards.BlockCard)
}

// ActivateCard handles administrative activation
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.cards.ActivateCard)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (models.Card, error)) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	card, err := op(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCardResponse(card))
}

// DeleteCard handles card removal
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cards.DeleteCard(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAllCards pages through every card
func (h *Handler) ListAllCards(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cards, err := h.cards.ListAll(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.MapPage(cards, toCardResponse))
}

// ListMyCards returns every card of the caller
func (h *Handler) ListMyCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListMine(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		resp = append(resp, toCardResponse(c))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListMyCardsPaged returns one page of the caller's cards
func (h *Handler) ListMyCardsPaged(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cards, err := h.cards.ListMinePaged(r.Context(), principal(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.MapPage(cards, toCardResponse))
}

// RequestBlock lets an owner ask for their card to be blocked
func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	card, err := h.cards.RequestBlock(r.Context(), id, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCardResponse(card))
}

// GetBalance returns the balance of one of the caller's cards
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.cards.GetBalance(r.Context(), id, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{CardID: id, Balance: balance.StringFixed(2)})
}

// Transfer moves money between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cards.Transfer(r.Context(), req.FromCardID, req.ToCardID, req.Amount, principal(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
