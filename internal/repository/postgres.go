// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mkravcova/boosterpack-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrEntitlementConflict возвращается, если право на открытие пака уже
// потрачено конкурентным вызовом или кулдаун ещё не истёк.
var (
	ErrEntitlementConflict = errors.New("entitlement already consumed")
	// ErrSessionNotFound возвращается, если сессия не существует или принадлежит другому пользователю.
	ErrSessionNotFound = errors.New("pack session not found")
	// ErrCardNotFound возвращается, если карточка не входит в сессию.
	ErrCardNotFound = errors.New("card not found in session")
	// ErrStateConflict возвращается, если состояние карточки изменилось между чтением и записью.
	ErrStateConflict = errors.New("card state changed concurrently")
)

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

// withRetry повторяет операцию при сериализационных конфликтах и сетевых сбоях.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetLastOpenedAt возвращает момент последнего открытия пака категории
// пользователем или nil, если пак этой категории ещё не открывался.
func (r *PostgresRepository) GetLastOpenedAt(ctx context.Context, userID int64, category model.PackCategory) (*time.Time, error) {
	var lastOpenedAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT last_opened_at FROM entitlements WHERE user_id = $1 AND category = $2`,
		userID, string(category),
	).Scan(&lastOpenedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	return &lastOpenedAt, nil
}

// ConsumeEntitlement атомарно потребляет право на открытие пака.
// Сравнение кулдауна и установка last_opened_at выполняются одним
// выражением, поэтому при конкурентных вызовах выигрывает ровно один.
func (r *PostgresRepository) ConsumeEntitlement(ctx context.Context, userID int64, category model.PackCategory, cooldown time.Duration) error {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id, category, last_opened_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, category) DO UPDATE
		 SET last_opened_at = now()
		 WHERE entitlements.last_opened_at <= now() - make_interval(secs => $3)`,
		userID, string(category), cooldown.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("consume entitlement: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrEntitlementConflict
	}

	return nil
}

// CreateSession сохраняет сессию открытия пака вместе с вытянутыми карточками.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *model.PackSession) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO pack_sessions (id, user_id, category, opened_at) VALUES ($1, $2, $3, $4)`,
			s.ID, s.UserID, string(s.Category), s.OpenedAt,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		for _, c := range s.Cards {
			_, err = tx.Exec(ctx,
				`INSERT INTO pack_cards (session_id, card_id, position, rarity, name, age, bio, photo_url, state)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				s.ID, c.Card.ID, c.Position, string(c.Card.Rarity),
				c.Card.Name, c.Card.Age, c.Card.Bio, c.Card.PhotoURL, string(c.State),
			)
			if err != nil {
				return fmt.Errorf("insert card: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetSession возвращает сессию пользователя вместе с карточками и решениями.
func (r *PostgresRepository) GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*model.PackSession, error) {
	var s model.PackSession
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, category, opened_at FROM pack_sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(&s.ID, &s.UserID, &s.Category, &s.OpenedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT c.card_id, c.position, c.rarity, c.name, c.age, c.bio, c.photo_url, c.state, d.outcome
		 FROM pack_cards c
		 LEFT JOIN decisions d ON d.session_id = c.session_id AND d.card_id = c.card_id
		 WHERE c.session_id = $1
		 ORDER BY c.position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c       model.SessionCard
			rarity  string
			state   string
			outcome *string
		)
		if err := rows.Scan(&c.Card.ID, &c.Position, &rarity, &c.Card.Name, &c.Card.Age,
			&c.Card.Bio, &c.Card.PhotoURL, &state, &outcome); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}

		c.Card.Rarity = model.RarityTier(rarity)
		c.Card.Category = s.Category
		c.State = model.RevealState(state)
		if outcome != nil {
			o := model.Outcome(*outcome)
			c.Outcome = &o
		}

		s.Cards = append(s.Cards, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &s, nil
}

// GetCard возвращает одну карточку сессии пользователя.
func (r *PostgresRepository) GetCard(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) (*model.SessionCard, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pack_sessions WHERE id = $1 AND user_id = $2)`,
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	var (
		c      model.SessionCard
		rarity string
		state  string
	)
	err = r.pool.QueryRow(ctx,
		`SELECT card_id, position, rarity, name, age, bio, photo_url, state
		 FROM pack_cards WHERE session_id = $1 AND card_id = $2`,
		sessionID, cardID,
	).Scan(&c.Card.ID, &c.Position, &rarity, &c.Card.Name, &c.Card.Age, &c.Card.Bio, &c.Card.PhotoURL, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}

	c.Card.Rarity = model.RarityTier(rarity)
	c.State = model.RevealState(state)

	return &c, nil
}

// UpdateCardState переводит карточку из ожидаемого состояния в новое.
// Условие по текущему состоянию делает запись последовательной для
// конкурентных вызовов по одной и той же карточке.
func (r *PostgresRepository) UpdateCardState(ctx context.Context, sessionID uuid.UUID, cardID int64, from, to model.RevealState) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE pack_cards SET state = $4 WHERE session_id = $1 AND card_id = $2 AND state = $3`,
		sessionID, cardID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update card state: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrStateConflict
	}

	return nil
}

// DecideCard переводит карточку REVEALED → DECIDED и записывает решение
// одной транзакцией: либо фиксируются оба изменения, либо ни одно, и
// карточка остаётся доступной для повторного decide. Возвращает false,
// если решение для пары (sessionID, cardID) уже было записано ранее.
func (r *PostgresRepository) DecideCard(ctx context.Context, d model.Decision) (bool, error) {
	var inserted bool
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE pack_cards SET state = $3 WHERE session_id = $1 AND card_id = $2 AND state = $4`,
			d.SessionID, d.CardID, string(model.StateDecided), string(model.StateRevealed),
		)
		if err != nil {
			return fmt.Errorf("update card state: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrStateConflict
		}

		cmdTag, err = tx.Exec(ctx,
			`INSERT INTO decisions (session_id, card_id, outcome, decided_at, match_status, pending_resync)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, card_id) DO NOTHING`,
			d.SessionID, d.CardID, string(d.Outcome), d.DecidedAt, string(d.MatchStatus), d.PendingResync,
		)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		inserted = cmdTag.RowsAffected() == 1

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// UpdateDecisionMatch обновляет статус сверки решения с сервисом матчей.
func (r *PostgresRepository) UpdateDecisionMatch(ctx context.Context, sessionID uuid.UUID, cardID int64, status model.MatchResult, pendingResync bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE decisions SET match_status = $3, pending_resync = $4 WHERE session_id = $1 AND card_id = $2`,
		sessionID, cardID, string(status), pendingResync,
	)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	return nil
}

// DecisionForResync описывает лайк, ожидающий повторной отправки в сервис матчей.
type DecisionForResync struct {
	SessionID uuid.UUID
	CardID    int64
	UserID    int64
}

// GetDecisionsForResync возвращает лайки, помеченные для повторной отправки.
func (r *PostgresRepository) GetDecisionsForResync(ctx context.Context, limit int) ([]DecisionForResync, error) {
	var res []DecisionForResync
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT d.session_id, d.card_id, s.user_id
			 FROM decisions d
			 JOIN pack_sessions s ON s.id = d.session_id
			 WHERE d.pending_resync AND d.outcome = $1
			 ORDER BY d.decided_at
			 LIMIT $2`,
			string(model.OutcomeLiked), limit,
		)
		if err != nil {
			return fmt.Errorf("select decisions for resync: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var d DecisionForResync
			if err := rows.Scan(&d.SessionID, &d.CardID, &d.UserID); err != nil {
				return fmt.Errorf("scan decision: %w", err)
			}
			res = append(res, d)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetDecidedCardIDs возвращает идентификаторы карточек, по которым пользователь
// уже принимал решение. Они исключаются из пула кандидатов при розыгрыше.
func (r *PostgresRepository) GetDecidedCardIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT d.card_id
		 FROM decisions d
		 JOIN pack_sessions s ON s.id = d.session_id
		 WHERE s.user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select decided cards: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan card id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
