package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/Junith-K/guess-the-imposter/internal/game"
)

// Repository archives final standings of finished sessions in Postgres, one
// row per session.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveStandings inserts one finished session. Standings are stored as a JSON
// array in final order, winners flagged.
func (r *Repository) SaveStandings(ctx context.Context, room string, rounds int, results []game.PlayerResult) error {
	if r == nil || r.db == nil || len(results) == 0 {
		return nil
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	q := `INSERT INTO imposter_sessions (
	    session_id, room, rounds, player_count, standings, ended_at
	  ) VALUES ($1,$2,$3,$4,$5,$6)
	  ON CONFLICT (session_id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, q,
		uuid.NewString(), room, rounds, len(results), string(raw), time.Now().UTC(),
	)
	return err
}
