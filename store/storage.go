package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"studyrag/model"
	"studyrag/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// chunkOpTimeout bounds each vector-store round trip.
const chunkOpTimeout = 10 * time.Second

// classify wraps a chunk-table failure for the retry policy. Connection
// loss, timeouts and resource exhaustion are retryable; data and
// constraint errors are not.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		// connection exception, insufficient resources, operator
		// intervention, transaction rollback
		case "08", "53", "57", "40":
			return model.NewTransient("vectorstore", err)
		}
		return model.NewPermanent("vectorstore", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return model.NewTransient("vectorstore", err)
	}

	// Anything unrecognized is most likely the connection, not the data.
	return model.NewTransient("vectorstore", err)
}

type DBStorer interface {
	CreateDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	SetDocumentStatus(ctx context.Context, docID uuid.UUID, status types.IngestStatus, failReason string) error
	SetDocumentCounts(ctx context.Context, docID uuid.UUID, pages, chunks, failed int) error
	CanAccess(ctx context.Context, userID, docID uuid.UUID) (bool, error)
	Upsert(ctx context.Context, namespace uuid.UUID, records []types.VectorRecord) error
	Query(ctx context.Context, namespace uuid.UUID, vec []float32, topK int) ([]types.Match, error)
	ListChunks(ctx context.Context, namespace uuid.UUID) ([]types.Chunk, error)
	DeleteNamespace(ctx context.Context, namespace uuid.UUID) error
	SaveFlashcard(context.Context, types.Flashcard) error
	GetFlashcardByID(context.Context, uuid.UUID) (*types.Flashcard, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
		dim:  dim,
	}, nil
}

func (p *PostgresStore) CreateDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, user_id, source_url, status, fail_reason, page_count, chunk_count, failed_chunks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			status = EXCLUDED.status,
			fail_reason = EXCLUDED.fail_reason,
			updated_at = EXCLUDED.updated_at
		`
	_, err := p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.SourceURL,
		doc.Status,
		doc.FailReason,
		doc.PageCount,
		doc.ChunkCount,
		doc.FailedChunks,
		doc.CreatedAt,
		doc.UpdatedAt,
	)

	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	query := `SELECT id, user_id, source_url, status, fail_reason, page_count, chunk_count, failed_chunks, created_at, updated_at
		FROM documents WHERE id = $1`

	doc := &types.Document{}
	err := p.pool.QueryRow(ctx, query, docID).Scan(
		&doc.ID,
		&doc.UserID,
		&doc.SourceURL,
		&doc.Status,
		&doc.FailReason,
		&doc.PageCount,
		&doc.ChunkCount,
		&doc.FailedChunks,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) SetDocumentStatus(ctx context.Context, docID uuid.UUID, status types.IngestStatus, failReason string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE documents SET status = $2, fail_reason = $3, updated_at = $4 WHERE id = $1`,
		docID, status, failReason, time.Now().UTC(),
	)
	return err
}

func (p *PostgresStore) SetDocumentCounts(ctx context.Context, docID uuid.UUID, pages, chunks, failed int) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE documents SET page_count = $2, chunk_count = $3, failed_chunks = $4, updated_at = $5 WHERE id = $1`,
		docID, pages, chunks, failed, time.Now().UTC(),
	)
	return err
}

func (p *PostgresStore) CanAccess(ctx context.Context, userID, docID uuid.UUID) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND user_id = $2)`,
		docID, userID,
	).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, namespace uuid.UUID, records []types.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, chunkOpTimeout)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO chunks (id, doc_id, ordinal, page, start_offset, end_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
		`
	for _, r := range records {
		if len(r.Vector) != p.dim {
			return model.NewPermanent("vectorstore", fmt.Errorf("vector dimension %d, want %d", len(r.Vector), p.dim))
		}
		_, err := tx.Exec(ctx, query,
			r.ChunkID, namespace, r.Ordinal, r.Page, r.StartOffset, r.EndOffset, r.Text, pgvector.NewVector(r.Vector),
		)
		if err != nil {
			return classify(err)
		}
	}

	return classify(tx.Commit(ctx))
}

func (p *PostgresStore) Query(ctx context.Context, namespace uuid.UUID, vec []float32, topK int) ([]types.Match, error) {
	if len(vec) == 0 {
		return nil, model.NewPermanent("vectorstore", fmt.Errorf("empty query vector"))
	}

	ctx, cancel := context.WithTimeout(ctx, chunkOpTimeout)
	defer cancel()

	query := `
		SELECT id, ordinal, page, start_offset, end_offset, content,
		       1 - (embedding <=> $2) AS score
		FROM chunks
		WHERE doc_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, namespace, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var matches []types.Match
	for rows.Next() {
		var m types.Match
		if err := rows.Scan(
			&m.ChunkID,
			&m.Ordinal,
			&m.Page,
			&m.StartOffset,
			&m.EndOffset,
			&m.Text,
			&m.Score,
		); err != nil {
			return nil, classify(err)
		}
		matches = append(matches, m)
	}
	return matches, classify(rows.Err())
}

func (p *PostgresStore) ListChunks(ctx context.Context, namespace uuid.UUID) ([]types.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, chunkOpTimeout)
	defer cancel()

	query := `SELECT id, doc_id, ordinal, page, start_offset, end_offset, content
		FROM chunks WHERE doc_id = $1 ORDER BY ordinal`

	rows, err := p.pool.Query(ctx, query, namespace)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(
			&c.ID,
			&c.DocID,
			&c.Ordinal,
			&c.Page,
			&c.StartOffset,
			&c.EndOffset,
			&c.Text,
		); err != nil {
			return nil, classify(err)
		}
		chunks = append(chunks, c)
	}
	return chunks, classify(rows.Err())
}

func (p *PostgresStore) DeleteNamespace(ctx context.Context, namespace uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, chunkOpTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", namespace)
	return classify(err)
}

func (p *PostgresStore) SaveFlashcard(ctx context.Context, card types.Flashcard) error {
	sources := make([]string, len(card.SourceChunks))
	for i, id := range card.SourceChunks {
		sources[i] = id.String()
	}

	query := `INSERT INTO flashcards (id, doc_id, question, answer, source_chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := p.pool.Exec(ctx, query,
		card.ID, card.DocID, card.Question, card.Answer, sources, card.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetFlashcardByID(ctx context.Context, cardID uuid.UUID) (*types.Flashcard, error) {
	query := `SELECT id, doc_id, question, answer, source_chunks, created_at FROM flashcards WHERE id = $1`

	card := &types.Flashcard{}
	var sources []string
	err := p.pool.QueryRow(ctx, query, cardID).Scan(
		&card.ID,
		&card.DocID,
		&card.Question,
		&card.Answer,
		&sources,
		&card.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	card.SourceChunks = make([]uuid.UUID, 0, len(sources))
	for _, s := range sources {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		card.SourceChunks = append(card.SourceChunks, id)
	}
	return card, nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		source_url TEXT NOT NULL,
		status TEXT NOT NULL,
		fail_reason TEXT NOT NULL DEFAULT '',
		page_count INT NOT NULL DEFAULT 0,
		chunk_count INT NOT NULL DEFAULT 0,
		failed_chunks INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id);

	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		ordinal INT NOT NULL,
		page INT NOT NULL,
		start_offset INT NOT NULL,
		end_offset INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS flashcards (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		source_chunks UUID[] NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_flashcards_doc_id ON flashcards(doc_id);
	`, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
