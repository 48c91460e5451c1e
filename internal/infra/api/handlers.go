package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"
	"telegram-access-subscription/internal/infra/logging"
	"telegram-access-subscription/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultActionsLimit = 50
	maxActionsLimit     = 500
)

// ===== Payment webhooks =====

// Duplicate and unknown deliveries are acknowledged with 200 so the provider stops retrying.
func paymentConfirmedHandler(uc ucport.PaymentIntake, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentConfirmedRequest
		if err := decodeJSON(r, &req); err != nil {
			metrics.IncPaymentEvent("succeeded", "invalid")
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			metrics.IncPaymentEvent("succeeded", "invalid")
			writeError(w, r, logger, err)
			return
		}
		outcome, err := uc.HandleConfirmed(r.Context(), req.TransactionID, req.Payload)
		ackPayment(w, r, logger, "succeeded", outcome, err)
	}
}

func paymentEventHandler(uc ucport.PaymentIntake, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentEventRequest
		if err := decodeJSON(r, &req); err != nil {
			metrics.IncPaymentEvent("unknown", "invalid")
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			metrics.IncPaymentEvent("unknown", "invalid")
			writeError(w, r, logger, err)
			return
		}

		ctx := r.Context()
		var (
			outcome model.PaymentOutcome
			err     error
		)
		switch req.Event {
		case "succeeded":
			outcome, err = uc.HandleConfirmed(ctx, req.TransactionID, req.Payload)
		case "failed":
			outcome, err = uc.HandleFailed(ctx, req.TransactionID, req.Reason, req.Payload)
		case "refunded":
			outcome, err = uc.HandleRefunded(ctx, req.TransactionID, req.Payload)
		}
		ackPayment(w, r, logger, req.Event, outcome, err)
	}
}

func ackPayment(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, event string, outcome model.PaymentOutcome, err error) {
	if err != nil {
		metrics.IncPaymentEvent(event, "error")
		writeError(w, r, logger, err)
		return
	}
	metrics.IncPaymentEvent(event, string(outcome))
	writeJSON(w, http.StatusOK, paymentAck{OK: true, Outcome: string(outcome)})
}

// ===== Subscriptions (admin) =====

func subscriptionCreateHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscriptionCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		sub, err := uc.Create(r.Context(), req.input(logging.Actor(r.Context())))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSubscriptionView(sub))
	}
}

func subscriptionGetHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := uc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubscriptionView(sub))
	}
}

func subscriptionUpdateHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscriptionUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		ctx := logging.WithSubscriptionID(r.Context(), chi.URLParam(r, "id"))
		sub, err := uc.Transition(ctx, chi.URLParam(r, "id"), req.update(logging.Actor(ctx)))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubscriptionView(sub))
	}
}

func subscriptionDeleteHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := uc.Delete(r.Context(), chi.URLParam(r, "id"), logging.Actor(r.Context())); err != nil {
			writeError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func subscriptionSyncHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, report, err := uc.SyncAccess(r.Context(), chi.URLParam(r, "id"), logging.Actor(r.Context()))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"subscription": toSubscriptionView(sub),
			"report":       toAccessReportView(report),
		})
	}
}

func subscriptionActionsHandler(uc ucport.SubscriptionAdmin, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultActionsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, r, logger, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidArgument))
				return
			}
			limit = min(n, maxActionsLimit)
		}
		entries, err := uc.Actions(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		out := make([]actionView, 0, len(entries))
		for _, e := range entries {
			out = append(out, actionView{
				ID:        e.ID,
				Action:    e.Action,
				Details:   e.Details,
				DedupKey:  e.DedupKey,
				CreatedAt: e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ===== Promotions and checkout =====

// promoCheckHandler answers 200 for every well-formed request; rejection reasons travel in the body.
func promoCheckHandler(uc ucport.PromoResolver, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promoCheckRequest
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		quote, err := uc.Resolve(r.Context(), model.PromoRequest{
			Code:         req.Code,
			Username:     req.Username,
			Amount:       req.Amount,
			PeriodMonths: req.PeriodMonths,
			TariffID:     req.TariffID,
		})
		if err != nil {
			logging.With(r.Context(), logger).Warn().Err(err).Str("code", req.Code).Msg("promo check failed")
			writeJSON(w, http.StatusOK, model.Rejected("unavailable", req.Amount))
			return
		}
		writeJSON(w, http.StatusOK, quote)
	}
}

func promoCreateHandler(uc ucport.PromoResolver, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promoCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		p := req.promocode()
		if err := uc.CreatePromocode(r.Context(), p); err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID, "code": p.Code})
	}
}

func checkoutHandler(uc ucport.Checkout, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		res, err := uc.Checkout(r.Context(), model.CheckoutRequest{
			UserID:       req.UserID,
			TariffID:     req.TariffID,
			PeriodMonths: req.PeriodMonths,
			PromoCode:    req.PromoCode,
		})
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, checkoutResponse{
			Subscription:  toSubscriptionView(res.Subscription),
			PaymentID:     res.Payment.ID,
			TransactionID: res.Payment.ExternalID,
			Amount:        res.Payment.Amount,
			Currency:      res.Payment.Currency,
			Quote:         res.Quote,
		})
	}
}

// ===== Scheduler =====

func schedulerRunHandler(runner PassRunner, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			writeMessage(w, http.StatusServiceUnavailable, "scheduler disabled")
			return
		}
		// the pass outlives a dropped admin connection
		report, err := runner.RunOnce(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, domain.ErrPassInProgress):
			writeMessage(w, http.StatusConflict, err.Error())
		case err != nil:
			logging.With(r.Context(), logger).Error().Err(err).Msg("manual reconciler pass failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		default:
			writeJSON(w, http.StatusOK, report)
		}
	}
}
