package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danbruder/draw/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUnexpectedDatabase = errors.New("unexpected-database-error")
	ErrInvalidWord        = errors.New("invalid-word")
	ErrInvalidTurn        = errors.New("invalid-turn")
)

// PostgreSQL error codes.
const (
	codeCheckViolation   = "23514"
	codeNotNullViolation = "23502"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

// LoadWords returns every stored word in alphabetical order.
func (pgr *PostgresRepo) LoadWords(ctx context.Context) ([]string, error) {
	rows, err := pgr.pool.Query(ctx, "SELECT word FROM words ORDER BY word")
	if err != nil {
		return nil, classify(err, ErrUnexpectedDatabase)
	}
	words, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err, ErrUnexpectedDatabase)
	}
	return words, nil
}

// AddWords inserts words, skipping the ones already stored, and returns how
// many were new.
func (pgr *PostgresRepo) AddWords(ctx context.Context, words []string) (int64, error) {
	tag, err := pgr.pool.Exec(ctx,
		"INSERT INTO words(word) SELECT unnest($1::text[]) ON CONFLICT (word) DO NOTHING",
		words,
	)
	if err != nil {
		return 0, classify(err, ErrInvalidWord)
	}
	return tag.RowsAffected(), nil
}

// ArchiveTurn implements game.TurnArchiver.
func (pgr *PostgresRepo) ArchiveTurn(ctx context.Context, rec game.ArchivedTurn) error {
	correct := rec.CorrectGuessers
	if correct == nil {
		correct = []string{}
	}
	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO turns(room, artist, artist_name, word, guesses, correct_guessers, reason, ended_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Room, string(rec.Artist), rec.ArtistName, rec.Word, rec.Guesses, correct, string(rec.Reason), rec.EndedAt,
	)
	if err != nil {
		return classify(err, ErrInvalidTurn)
	}
	return nil
}

// RecentTurns implements game.TurnHistory. Newest turns come first.
func (pgr *PostgresRepo) RecentTurns(ctx context.Context, room string, limit int) ([]game.ArchivedTurn, error) {
	rows, err := pgr.pool.Query(ctx,
		`SELECT room, artist, artist_name, word, guesses, correct_guessers, reason, ended_at
		 FROM turns WHERE room = $1 ORDER BY ended_at DESC, id DESC LIMIT $2`,
		room, limit,
	)
	if err != nil {
		return nil, classify(err, ErrUnexpectedDatabase)
	}
	defer rows.Close()

	turns := []game.ArchivedTurn{}
	for rows.Next() {
		var t game.ArchivedTurn
		var artist, reason string
		if err := rows.Scan(&t.Room, &artist, &t.ArtistName, &t.Word, &t.Guesses, &t.CorrectGuessers, &reason, &t.EndedAt); err != nil {
			return nil, classify(err, ErrUnexpectedDatabase)
		}
		t.Artist = game.ParticipantID(artist)
		t.Reason = game.TurnEndReason(reason)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, ErrUnexpectedDatabase)
	}
	return turns, nil
}

// classify maps constraint violations to invalid, passes context errors
// through and wraps anything else as unexpected.
func classify(err error, invalid error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeCheckViolation, codeNotNullViolation:
			return fmt.Errorf("%w: %s", invalid, pgErr.ConstraintName)
		}
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
	}
}
