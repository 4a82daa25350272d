// Package repository содержит реализации хранилища клиентов, заказов и промокодов.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetUser возвращает клиента, создавая запись при первом обращении.
func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	var u model.User
	err = r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(referral_code, ''), bonus FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.ReferralCode, &u.Bonus)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SetReferralCode сохраняет реферальный код клиента.
func (r *PostgresRepository) SetReferralCode(ctx context.Context, userID int64, code string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, referral_code) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET referral_code = EXCLUDED.referral_code`,
		userID, code,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrReferralCodeTaken, code)
		}
		return fmt.Errorf("set referral code: %w", err)
	}
	return nil
}

// FindUserByReferralCode возвращает владельца реферального кода.
func (r *PostgresRepository) FindUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, referral_code, bonus FROM users WHERE referral_code = $1`,
		code,
	).Scan(&u.ID, &u.ReferralCode, &u.Bonus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by referral code: %w", err)
	}
	return &u, nil
}

// AdjustBonus изменяет бонусный баланс клиента на delta и возвращает новый баланс.
// Использует блокировку строки клиента для сериализации изменений.
func (r *PostgresRepository) AdjustBonus(ctx context.Context, userID int64, delta int64) (int64, error) {
	var balance int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		balance, err = adjustBonusTx(ctx, tx, userID, delta)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	return balance, err
}

func adjustBonusTx(ctx context.Context, tx pgx.Tx, userID int64, delta int64) (int64, error) {
	_, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}

	var current int64
	err = tx.QueryRow(ctx, `SELECT bonus FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("lock user for update: %w", err)
	}

	next := current + delta
	if next < 0 {
		return current, ErrInsufficientBonus
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET bonus = $2 WHERE id = $1`, userID, next); err != nil {
		return 0, fmt.Errorf("update bonus: %w", err)
	}
	return next, nil
}

// CommitCheckout сохраняет заказы корзины и списывает бонусы в одной транзакции.
func (r *PostgresRepository) CommitCheckout(ctx context.Context, c model.Checkout) error {
	if len(c.Orders) == 0 {
		return ErrEmptyCheckout
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if c.BonusDebit > 0 {
			if _, err := adjustBonusTx(ctx, tx, c.UserID, -c.BonusDebit); err != nil {
				return err
			}
		}

		for _, o := range c.Orders {
			_, err := tx.Exec(ctx,
				`INSERT INTO orders (order_id, user_id, display_name, category, price, commission, final_price,
				                     order_name, order_link, status, created_at, screenshot_ref, discount, promo_code_used)
				 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13, $14)`,
				o.ID, o.UserID, o.DisplayName, string(o.Category),
				o.Price.String(), o.Commission.String(), o.FinalPrice.String(),
				o.Name, o.Link, string(o.Status), o.CreatedAt,
				nullString(o.ScreenshotRef), o.Discount, o.PromoCodeUsed,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
				}
				return fmt.Errorf("insert order: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ConfirmReceipt сохраняет квитанцию в последнем заказе оформления и переводит
// все заказы оформления в статус ожидания подтверждения.
func (r *PostgresRepository) ConfirmReceipt(ctx context.Context, orderIDs []string, receiptRef string) error {
	if len(orderIDs) == 0 {
		return ErrOrderNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	last := orderIDs[len(orderIDs)-1]
	var existing *string
	err = tx.QueryRow(ctx,
		`SELECT receipt_ref FROM orders WHERE order_id = $1 FOR UPDATE`,
		last,
	).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, last)
	}
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrReceiptExists, last)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET receipt_ref = $2 WHERE order_id = $1`,
		last, receiptRef,
	); err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE order_id = ANY($1)`,
		orderIDs, string(model.OrderStatusPendingConfirmation),
	)
	if err != nil {
		return fmt.Errorf("update statuses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateOrderStatus меняет статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE order_id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}

const orderColumns = `order_id, user_id, display_name, category, price::text, commission::text, final_price::text,
	order_name, order_link, status, created_at, screenshot_ref, receipt_ref, discount, promo_code_used`

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает заказы в порядке создания, при необходимости только одного клиента.
func (r *PostgresRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.UserID != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at, order_id`,
			*filter.UserID,
		)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, order_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                         model.Order
		category, status          string
		price, commission, final  string
		screenshotRef, receiptRef *string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.DisplayName, &category, &price, &commission, &final,
		&o.Name, &o.Link, &status, &o.CreatedAt, &screenshotRef, &receiptRef, &o.Discount, &o.PromoCodeUsed)
	if err != nil {
		return nil, err
	}

	o.Category = model.Category(category)
	o.Status = model.OrderStatus(status)
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if o.Commission, err = decimal.NewFromString(commission); err != nil {
		return nil, fmt.Errorf("parse commission: %w", err)
	}
	if o.FinalPrice, err = decimal.NewFromString(final); err != nil {
		return nil, fmt.Errorf("parse final price: %w", err)
	}
	if screenshotRef != nil {
		o.ScreenshotRef = *screenshotRef
	}
	if receiptRef != nil {
		o.ReceiptRef = *receiptRef
	}
	return &o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SavePromoCode создаёт промокод или обновляет тип и скидку существующего. История погашений сохраняется.
func (r *PostgresRepository) SavePromoCode(ctx context.Context, p model.PromoCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO promo_codes (code, type, discount) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET type = EXCLUDED.type, discount = EXCLUDED.discount`,
		p.Code, string(p.Type), p.Discount,
	)
	if err != nil {
		return fmt.Errorf("save promo code: %w", err)
	}
	return nil
}

// RedeemPromoCode проверяет промокод и сразу фиксирует его погашение клиентом.
// Строка промокода блокируется, поэтому одноразовый код не может быть погашен дважды одним клиентом.
func (r *PostgresRepository) RedeemPromoCode(ctx context.Context, code string, userID int64) (*model.PromoCode, error) {
	var p model.PromoCode
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var promoType string
		err = tx.QueryRow(ctx,
			`SELECT code, type, discount, created_at FROM promo_codes WHERE code = $1 FOR UPDATE`,
			code,
		).Scan(&p.Code, &promoType, &p.Discount, &p.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPromoNotFound
			}
			return fmt.Errorf("lock promo code: %w", err)
		}
		p.Type = model.PromoType(promoType)

		if p.Type == model.PromoTypeOneTime {
			var used bool
			err = tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM promo_redemptions WHERE code = $1 AND user_id = $2)`,
				code, userID,
			).Scan(&used)
			if err != nil {
				return fmt.Errorf("check redemption: %w", err)
			}
			if used {
				return ErrPromoAlreadyRedeemed
			}
		}

		_, err = tx.Exec(ctx, `INSERT INTO promo_redemptions (code, user_id) VALUES ($1, $2)`, code, userID)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM promo_redemptions WHERE code = $1`, code).Scan(&p.Redemptions)
		if err != nil {
			return fmt.Errorf("count redemptions: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPromoCodes возвращает все промокоды с количеством погашений.
func (r *PostgresRepository) ListPromoCodes(ctx context.Context) ([]model.PromoCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.code, p.type, p.discount, p.created_at, COUNT(pr.id)
		 FROM promo_codes p
		 LEFT JOIN promo_redemptions pr ON pr.code = p.code
		 GROUP BY p.code, p.type, p.discount, p.created_at
		 ORDER BY p.created_at, p.code`,
	)
	if err != nil {
		return nil, fmt.Errorf("select promo codes: %w", err)
	}
	defer rows.Close()

	var res []model.PromoCode
	for rows.Next() {
		var (
			p         model.PromoCode
			promoType string
		)
		if err := rows.Scan(&p.Code, &promoType, &p.Discount, &p.CreatedAt, &p.Redemptions); err != nil {
			return nil, fmt.Errorf("scan promo code: %w", err)
		}
		p.Type = model.PromoType(promoType)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
