// Package handler содержит HTTP-обработчики операторского API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
)

// Service определяет операции оператора, доступные по HTTP.
type Service interface {
	ListAllOrders(ctx context.Context, operatorID int64) ([]model.Order, error)
	OrderDetail(ctx context.Context, operatorID int64, orderID string) (*model.Order, error)
	SetOrderStatus(ctx context.Context, operatorID int64, orderID string, status model.OrderStatus) (*model.Order, error)
	GrantPromoCode(ctx context.Context, operatorID int64, code string, promoType model.PromoType, amount int64) (model.PromoCode, error)
	ListPromoCodes(ctx context.Context, operatorID int64) ([]model.PromoCode, error)
	Analytics(ctx context.Context, operatorID int64) (service.Analytics, error)
	AdjustBonus(ctx context.Context, operatorID, userID, delta int64) (int64, error)
}

// Handler реализует HTTP-обработчики операторского API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type orderResponse struct {
	ID            string          `json:"id"`
	UserID        int64           `json:"user_id"`
	DisplayName   string          `json:"display_name,omitempty"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	Commission    decimal.Decimal `json:"commission"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	Name          string          `json:"name"`
	Link          string          `json:"link"`
	Status        string          `json:"status"`
	StatusLabel   string          `json:"status_label"`
	CreatedAt     string          `json:"created_at"`
	ScreenshotRef string          `json:"screenshot_ref,omitempty"`
	ReceiptRef    string          `json:"receipt_ref,omitempty"`
	Discount      *int64          `json:"discount,omitempty"`
	PromoCodeUsed *string         `json:"promo_code_used,omitempty"`
}

func newOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		DisplayName:   o.DisplayName,
		Category:      string(o.Category),
		Price:         o.Price,
		Commission:    o.Commission,
		FinalPrice:    o.FinalPrice,
		Name:          o.Name,
		Link:          o.Link,
		Status:        string(o.Status),
		StatusLabel:   o.Status.Label(),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		ScreenshotRef: o.ScreenshotRef,
		ReceiptRef:    o.ReceiptRef,
		Discount:      o.Discount,
		PromoCodeUsed: o.PromoCodeUsed,
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

type promoRequest struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Discount int64  `json:"discount"`
}

type promoResponse struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Discount    int64  `json:"discount"`
	Redemptions int    `json:"redemptions"`
	CreatedAt   string `json:"created_at"`
}

func newPromoResponse(p model.PromoCode) promoResponse {
	return promoResponse{
		Code:        p.Code,
		Type:        string(p.Type),
		Discount:    p.Discount,
		Redemptions: p.Redemptions,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

type analyticsResponse struct {
	PaidOrders int             `json:"paid_orders"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type bonusRequest struct {
	Delta int64 `json:"delta"`
}

type bonusResponse struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибку бизнес-логики в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrAccessDenied):
		code = http.StatusForbidden
	case errors.Is(err, repository.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrUnknownStatus), errors.Is(err, service.ErrInvalidPromo):
		code = http.StatusBadRequest
	case errors.Is(err, repository.ErrInsufficientBonus):
		code = http.StatusConflict
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	}
	http.Error(w, http.StatusText(code), code)
}

func operatorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetOperatorIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

// Health сообщает, что сервис запущен.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListOrders возвращает все заказы.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListAllOrders(r.Context(), opID)
	if err != nil {
		h.writeError(w, err, "list orders error", zap.Int64("operatorID", opID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	orderID := chi.URLParam(r, "id")
	o, err := h.service.OrderDetail(r.Context(), opID, orderID)
	if err != nil {
		h.writeError(w, err, "get order error", zap.String("order", orderID))
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(*o))
}

// SetStatus меняет статус заказа. Клиент получает уведомление.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID := chi.URLParam(r, "id")
	o, err := h.service.SetOrderStatus(r.Context(), opID, orderID, model.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, err, "set order status error", zap.String("order", orderID), zap.String("status", req.Status))
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(*o))
}

// ListPromos возвращает промокоды с количеством погашений.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	promos, err := h.service.ListPromoCodes(r.Context(), opID)
	if err != nil {
		h.writeError(w, err, "list promo codes error")
		return
	}

	resp := make([]promoResponse, 0, len(promos))
	for _, p := range promos {
		resp = append(resp, newPromoResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreatePromo создаёт промокод или обновляет существующий.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GrantPromoCode(r.Context(), opID, req.Code, model.PromoType(req.Type), req.Discount)
	if err != nil {
		h.writeError(w, err, "grant promo code error", zap.String("code", req.Code))
		return
	}
	h.writeJSON(w, http.StatusCreated, newPromoResponse(p))
}

// GetAnalytics возвращает число оплаченных заказов и выручку.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Analytics(r.Context(), opID)
	if err != nil {
		h.writeError(w, err, "analytics error")
		return
	}
	h.writeJSON(w, http.StatusOK, analyticsResponse{PaidOrders: a.PaidOrders, Revenue: a.Revenue})
}

// AdjustBonus начисляет или списывает бонусы клиента.
func (h *Handler) AdjustBonus(w http.ResponseWriter, r *http.Request) {
	opID, ok := operatorID(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req bonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.AdjustBonus(r.Context(), opID, userID, req.Delta)
	if err != nil {
		h.writeError(w, err, "adjust bonus error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, bonusResponse{UserID: userID, Balance: balance})
}
