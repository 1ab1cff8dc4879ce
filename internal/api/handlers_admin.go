/**
 * @description
 * HTTP handlers for the admin surface: user management, manual balance
 * adjustments, forced reversals, and transaction status corrections. All
 * routes here sit behind AuthMiddleware plus AdminOnly.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flashbot/wallet-service/internal/app"
	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

// AdminLoginHandler authenticates an admin account.
func (h *WalletHandlers) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.AdminLogin(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("level=error component=api endpoint=admin_login err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AdminListUsersHandler returns a page of users for the dashboard.
func (h *WalletHandlers) AdminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	users, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_list_users err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// AdminListTransactionsHandler returns a page of ledger entries across users.
func (h *WalletHandlers) AdminListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	entries, err := h.service.ListAllEntries(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": entries})
}

// AdminGetUserHandler returns a single user's profile and balance.
func (h *WalletHandlers) AdminGetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=admin_get_user user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// AdminSetActiveHandler flips a user's activation flag.
func (h *WalletHandlers) AdminSetActiveHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.service.SetAccountActive(r.Context(), userID, req.Active); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=admin_set_active user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "active": req.Active})
}

// AdminAdjustBalanceHandler applies a manual credit or clamped debit.
func (h *WalletHandlers) AdminAdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req domain.AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.UserID = userID

	entry, err := h.service.AdjustBalance(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusConflict, "Wallet balance is already zero")
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=admin_adjust_balance user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// AdminRevertTransactionHandler force-reverts a pending transfer.
func (h *WalletHandlers) AdminRevertTransactionHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}

	result, err := h.service.ForceRevertTransaction(r.Context(), entryID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, store.ErrNotRevertible):
			h.writeError(w, http.StatusConflict, "Transaction cannot be reverted")
		default:
			log.Printf("level=error component=api endpoint=admin_revert entry_id=%s err=%v", entryID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AdminEditStatusHandler applies a bookkeeping-only status change.
func (h *WalletHandlers) AdminEditStatusHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}

	var req domain.EditStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	entry, err := h.service.EditTransactionStatus(r.Context(), entryID, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			h.writeError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, app.ErrInvalidStatusTransition):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("level=error component=api endpoint=admin_edit_status entry_id=%s err=%v", entryID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// AdminDeleteUserHandler removes a non-admin account and its history.
func (h *WalletHandlers) AdminDeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, app.ErrCannotDeleteAdmin):
			h.writeError(w, http.StatusForbidden, "Admin accounts cannot be deleted")
		default:
			log.Printf("level=error component=api endpoint=admin_delete_user user_id=%s err=%v", userID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
