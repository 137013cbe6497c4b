package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

const pgUniqueViolation = "23505"

// Postgres is the production Catalog, backed by jackc/pgx/v5's
// database/sql driver. Query shape is grounded on
// kk7453603-AIAssistent's postgres.DocumentRepository: plain
// ExecContext/QueryRowContext over *sql.DB, no ORM.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a pooled connection to dsn using the pgx stdlib
// driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}
	return db, nil
}

// NewPostgres wraps an already-open *sql.DB as a Catalog.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindImageBySHA256(ctx context.Context, sha256 string) (*pipeline.Image, error) {
	row := p.db.QueryRowContext(ctx, `
SELECT id, sha256, phash, original_mime, original_width, original_height, original_bytes,
       original_storage_path, status, detected_side, side_confidence, is_collage,
       detected_method, updated_at, error
FROM images
WHERE sha256 = $1
`, sha256)

	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find image by sha256: %w", err)
	}
	return img, nil
}

func scanImage(row *sql.Row) (*pipeline.Image, error) {
	var img pipeline.Image
	var detectedSide, detectedMethod sql.NullString
	var sideConfidence sql.NullFloat64

	err := row.Scan(
		&img.ID, &img.SHA256, &img.PHash, &img.OriginalMIME, &img.OriginalWidth, &img.OriginalHeight,
		&img.OriginalBytes, &img.OriginalStoragePath, &img.Status, &detectedSide, &sideConfidence,
		&img.IsCollage, &detectedMethod, &img.UpdatedAt, &img.Error,
	)
	if err != nil {
		return nil, err
	}
	img.DetectedSide = pipeline.Side(detectedSide.String)
	img.DetectedMethod = pipeline.DetectionMethod(detectedMethod.String)
	img.SideConfidence = sideConfidence.Float64
	return &img, nil
}

func (p *Postgres) GetImageSource(ctx context.Context, id string) (*pipeline.ImageSource, error) {
	return p.scanSource(ctx, "SELECT id, name, base_url, trust_tier, max_rps, max_concurrency, is_allowed FROM image_sources WHERE id = $1", id)
}

func (p *Postgres) GetImageSourceByName(ctx context.Context, name string) (*pipeline.ImageSource, error) {
	return p.scanSource(ctx, "SELECT id, name, base_url, trust_tier, max_rps, max_concurrency, is_allowed FROM image_sources WHERE name = $1", name)
}

func (p *Postgres) scanSource(ctx context.Context, query, arg string) (*pipeline.ImageSource, error) {
	row := p.db.QueryRowContext(ctx, query, arg)

	var src pipeline.ImageSource
	err := row.Scan(&src.ID, &src.Name, &src.BaseURL, &src.TrustTier, &src.MaxRPS, &src.MaxConcurrency, &src.IsAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup image source: %w", err)
	}
	return &src, nil
}

func (p *Postgres) CreateImageRecord(ctx context.Context, img pipeline.Image) (string, error) {
	row := p.db.QueryRowContext(ctx, `
INSERT INTO images (
	sha256, phash, original_mime, original_width, original_height, original_bytes,
	original_storage_path, status, detected_side, side_confidence, is_collage,
	detected_method, updated_at, error
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id
`,
		img.SHA256, img.PHash, img.OriginalMIME, img.OriginalWidth, img.OriginalHeight, img.OriginalBytes,
		img.OriginalStoragePath, img.Status, string(img.DetectedSide), img.SideConfidence, img.IsCollage,
		string(img.DetectedMethod), time.Now().UTC(), img.Error,
	)

	var id string
	if err := row.Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", ErrDuplicateImage
		}
		return "", fmt.Errorf("create image record: %w", err)
	}
	return id, nil
}

func (p *Postgres) UpdateImageStatus(ctx context.Context, imageID string, status pipeline.ImageStatus, errMsg *string) error {
	_, err := p.db.ExecContext(ctx, `
UPDATE images SET status = $2, error = $3, updated_at = $4 WHERE id = $1
`, imageID, string(status), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update image status: %w", err)
	}
	return nil
}

func (p *Postgres) CreateDerivativeRecord(ctx context.Context, d pipeline.Derivative) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO image_derivatives (image_id, variant, format, width, height, bytes, storage_path)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (image_id, variant) DO UPDATE SET
	format = EXCLUDED.format, width = EXCLUDED.width, height = EXCLUDED.height,
	bytes = EXCLUDED.bytes, storage_path = EXCLUDED.storage_path
`, d.ImageID, string(d.Variant), d.Format, d.Width, d.Height, d.Bytes, d.StoragePath)
	if err != nil {
		return fmt.Errorf("create derivative record: %w", err)
	}
	return nil
}

func (p *Postgres) AssignImageToCard(ctx context.Context, a pipeline.CardImageAssignment) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO card_images (card_id, image_id, role, source_id, source_url, assigned_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (card_id, role) DO UPDATE SET
	image_id = EXCLUDED.image_id, source_id = EXCLUDED.source_id,
	source_url = EXCLUDED.source_url, assigned_at = EXCLUDED.assigned_at
`, a.CardID, a.ImageID, string(a.Role), a.SourceID, a.SourceURL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign image to card: %w", err)
	}
	return nil
}

func (p *Postgres) LogIngestEvent(ctx context.Context, e pipeline.IngestEvent) error {
	var metadataJSON []byte
	if e.Metadata != nil {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal ingest event metadata: %w", err)
		}
		metadataJSON = encoded
	}

	_, err := p.db.ExecContext(ctx, `
INSERT INTO image_ingest_events (card_id, candidate_id, image_id, event_type, message, http_status, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.CardID, e.CandidateID, e.ImageID, string(e.EventType), e.Message, e.HTTPStatus, metadataJSON)
	if err != nil {
		return fmt.Errorf("log ingest event: %w", err)
	}
	return nil
}
