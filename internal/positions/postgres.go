package positions

import (
	"context"

	"spot_bot/internal/models"
	"spot_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS positions (
	symbol     TEXT PRIMARY KEY,
	buy_price  DOUBLE PRECISION NOT NULL CHECK (buy_price > 0),
	amount     DOUBLE PRECISION NOT NULL CHECK (amount > 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectSQL = `SELECT symbol, buy_price, amount FROM positions`
	deleteSQL = `DELETE FROM positions`
	insertSQL = `INSERT INTO positions (symbol, buy_price, amount) VALUES ($1, $2, $3)`
)

// Postgres: альтернативное хранилище: таблица positions, Save переписывает её в одной транзакции.
type Postgres struct {
	tx  db.TxManager
	log *zap.Logger
}

func NewPostgres(tx db.TxManager, log *zap.Logger) *Postgres {
	if log == nil {
		log = zap.NewNop()
	}
	return &Postgres{tx: tx, log: log}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.tx.Conn().Exec(ctx, createTableSQL)
	return errors.Wrap(err, "create positions table")
}

func (s *Postgres) Load(ctx context.Context) LoadResult {
	rows, err := s.tx.Conn().Query(ctx, selectSQL)
	if err != nil {
		s.log.Error("positions table is unreadable", zap.Error(err))
		return LoadResult{Positions: models.Positions{}, Status: StatusCorrupt, Cause: err}
	}
	defer rows.Close()

	p := models.Positions{}
	for rows.Next() {
		var (
			sym string
			pos models.Position
		)
		if err := rows.Scan(&sym, &pos.BuyPrice, &pos.Amount); err != nil {
			s.log.Error("positions row scan failed", zap.Error(err))
			return LoadResult{Positions: models.Positions{}, Status: StatusCorrupt, Cause: err}
		}
		p[sym] = pos
	}
	if err := rows.Err(); err != nil {
		s.log.Error("positions query failed", zap.Error(err))
		return LoadResult{Positions: models.Positions{}, Status: StatusCorrupt, Cause: err}
	}
	if len(p) == 0 {
		return LoadResult{Positions: p, Status: StatusEmpty}
	}
	return LoadResult{Positions: p, Status: StatusValid}
}

func (s *Postgres) Save(ctx context.Context, p models.Positions) error {
	err := s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, deleteSQL); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for sym, pos := range p {
			batch.Queue(insertSQL, sym, pos.BuyPrice, pos.Amount)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctxTx, batch).Close()
	})
	return errors.Wrap(err, "save positions")
}
