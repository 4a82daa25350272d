package repository

import "errors"

var (
	// ErrUserNotFound возвращается, если клиент не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrReferralCodeTaken возвращается, если реферальный код уже принадлежит другому клиенту.
	ErrReferralCodeTaken = errors.New("referral code already taken")
	// ErrInsufficientBonus возвращается при попытке списать больше бонусов, чем есть на балансе.
	ErrInsufficientBonus = errors.New("insufficient bonus balance")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при повторной вставке заказа с тем же идентификатором.
	ErrOrderExists = errors.New("order already exists")
	// ErrReceiptExists возвращается при повторной отправке квитанции по уже оплаченному оформлению.
	ErrReceiptExists = errors.New("receipt already attached")
	// ErrEmptyCheckout возвращается при попытке сохранить оформление без заказов.
	ErrEmptyCheckout = errors.New("checkout has no orders")
	// ErrPromoNotFound возвращается, если промокод не существует.
	ErrPromoNotFound = errors.New("promo code not found")
	// ErrPromoAlreadyRedeemed возвращается, если одноразовый промокод уже погашен клиентом.
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
)
