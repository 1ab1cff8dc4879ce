/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's user-facing
 * API endpoints. Handlers are responsible for parsing incoming requests,
 * calling the appropriate methods on the application service, and writing the
 * HTTP response. They act as the bridge between the web layer and the
 * business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/app"
	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
	"github.com/flashbot/wallet-service/pkg/rabbitmq"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service     *app.Service
	producer    rabbitmq.Publisher
	webhookHash string
}

func NewWalletHandlers(service *app.Service, producer rabbitmq.Publisher, webhookHash string) *WalletHandlers {
	return &WalletHandlers{service: service, producer: producer, webhookHash: webhookHash}
}

// RegisterHandler creates a new wallet account.
func (h *WalletHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			h.writeError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		log.Printf("level=warn component=api endpoint=register outcome=reject err=%v", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("level=info component=api endpoint=register outcome=created user_id=%s", result.User.ID)
	h.writeJSON(w, http.StatusCreated, result)
}

// LoginHandler authenticates a user and returns a session token.
func (h *WalletHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ProfileHandler returns the authenticated user's profile and live balance.
func (h *WalletHandlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=profile user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// TransactionHistoryHandler returns a page of the caller's ledger entries.
func (h *WalletHandlers) TransactionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	limit, offset := parsePage(r)
	entries, err := h.service.ListUserEntries(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=transactions user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}

// TransferHandler handles requests to send money to an external bank account.
func (h *WalletHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.InitiateTransfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed user_id=%s err=%v", userID, err)
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
		case errors.Is(err, app.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=accepted user_id=%s entry_id=%s amount=%d", userID, result.EntryID, result.Amount)
	h.writeJSON(w, http.StatusCreated, result)
}

// RevertTransferHandler refunds a pending transfer made before activation.
func (h *WalletHandlers) RevertTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}

	result, err := h.service.RevertTransfer(r.Context(), userID, entryID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, store.ErrNotRevertible):
			h.writeError(w, http.StatusConflict, "Transaction cannot be reverted")
		default:
			log.Printf("level=error component=api endpoint=revert user_id=%s entry_id=%s err=%v", userID, entryID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// InitiatePaymentHandler starts an activation or top-up payment.
func (h *WalletHandlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	handle, err := h.service.InitiatePayment(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAccountAlreadyActive):
			h.writeError(w, http.StatusConflict, "Account is already active")
		case errors.Is(err, app.ErrAmountMismatch):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrGatewayUnavailable):
			h.writeError(w, http.StatusBadGateway, "Payment gateway is unavailable, try again shortly")
		default:
			log.Printf("level=error component=api endpoint=initiate_payment user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	log.Printf("level=info component=api endpoint=initiate_payment user_id=%s reference=%s type=%s", userID, handle.Reference, handle.PaymentType)
	h.writeJSON(w, http.StatusCreated, handle)
}

// PaymentStatusHandler resolves a payment reference, applying its effect when
// the gateway reports success. Clients poll this while waiting for a bank
// transfer to land.
func (h *WalletHandlers) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	reference := chi.URLParam(r, "reference")
	conf, err := h.service.ConfirmPayment(r.Context(), userID, reference)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, "Payment not found")
		case errors.Is(err, app.ErrPaymentPending):
			h.writeJSON(w, http.StatusOK, map[string]string{"reference": reference, "status": domain.EntryStatusPending})
		case errors.Is(err, app.ErrPaymentExpired):
			h.writeError(w, http.StatusGone, "Payment window has expired")
		case errors.Is(err, app.ErrGatewayUnavailable):
			h.writeError(w, http.StatusBadGateway, "Payment gateway is unavailable, try again shortly")
		default:
			log.Printf("level=error component=api endpoint=payment_status reference=%s err=%v", reference, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, conf)
}

// ClaimBonusHandler credits the registration bonus once the countdown ends.
func (h *WalletHandlers) ClaimBonusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	result, err := h.service.CreditSignupBonus(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrCountdownActive):
			h.writeError(w, http.StatusConflict, "Signup countdown has not elapsed yet")
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			log.Printf("level=error component=api endpoint=claim_bonus user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListBanksHandler proxies the gateway's bank directory.
func (h *WalletHandlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	banks, err := h.service.ListBanks(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=banks err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not load bank list")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"banks": banks})
}

// ResolveAccountHandler looks up the owner of an external bank account.
func (h *WalletHandlers) ResolveAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := r.URL.Query().Get("account_number")
	bankCode := r.URL.Query().Get("bank_code")
	if accountNumber == "" || bankCode == "" {
		h.writeError(w, http.StatusBadRequest, "account_number and bank_code are required")
		return
	}

	resolved, err := h.service.ResolveAccount(r.Context(), accountNumber, bankCode)
	if err != nil {
		log.Printf("level=warn component=api endpoint=resolve_account bank_code=%s err=%v", bankCode, err)
		h.writeError(w, http.StatusBadGateway, "Could not resolve account")
		return
	}
	h.writeJSON(w, http.StatusOK, resolved)
}

// WebhookHandler receives Flutterwave payment notifications. It only verifies
// the shared signature header and republishes to the broker; resolution
// happens in the consumer through the same path as client polling.
func (h *WalletHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.webhookHash != "" && r.Header.Get("verif-hash") != h.webhookHash {
		log.Printf("level=warn component=api endpoint=webhook outcome=reject reason=bad_signature")
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			TxRef  string  `json:"tx_ref"`
			Status string  `json:"status"`
			Amount float64 `json:"amount"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if payload.Data.TxRef == "" {
		h.writeError(w, http.StatusBadRequest, "Missing transaction reference")
		return
	}

	event := domain.PaymentStatusEvent{
		Reference:  payload.Data.TxRef,
		Status:     payload.Data.Status,
		AmountPaid: int64(payload.Data.Amount*100 + 0.5),
		OccurredAt: time.Now().UTC(),
	}
	if h.producer != nil {
		if err := h.producer.Publish(r.Context(), rabbitmq.WalletEventsExchange, "payment.status.updated", event); err != nil {
			log.Printf("level=error component=api endpoint=webhook reference=%s err=%v", event.Reference, err)
			h.writeError(w, http.StatusInternalServerError, "Could not queue event")
			return
		}
	}

	log.Printf("level=info component=api endpoint=webhook outcome=queued reference=%s status=%s", event.Reference, event.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			offset = v
		}
	}
	return limit, offset
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
