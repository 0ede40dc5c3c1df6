package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// AnnotationRepo implements ports.AnnotationRepository with pgx. Geometry is
// stored twice: the GeoJSON document as JSONB, which is what clients read
// back, and a PostGIS geometry column for spatial indexing.
type AnnotationRepo struct {
	db *DB
}

// NewAnnotationRepo creates a new AnnotationRepo.
func NewAnnotationRepo(db *DB) *AnnotationRepo {
	return &AnnotationRepo{db: db}
}

const areaColumns = `id, team_id, name, kind, boundary, COALESCE(created_by, ''), created_at`

// ListAreas returns the team's areas in creation order.
func (r *AnnotationRepo) ListAreas(ctx context.Context, teamID string) ([]domain.DriveArea, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+areaColumns+`
		FROM drive_areas
		WHERE team_id = $1
		ORDER BY created_at, id
	`, teamID)
	if err != nil {
		return nil, err
	}
	return collectAreas(rows)
}

// ListPasses returns the team's passes in creation order.
func (r *AnnotationRepo) ListPasses(ctx context.Context, teamID string) ([]domain.HuntingPass, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, team_id, drive_area_id, name, location,
		       COALESCE(description, ''), COALESCE(created_by, ''), created_at
		FROM hunting_passes
		WHERE team_id = $1
		ORDER BY created_at, id
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	passes := []domain.HuntingPass{}
	for rows.Next() {
		var p domain.HuntingPass
		var location []byte
		if err := rows.Scan(
			&p.ID, &p.TeamID, &p.DriveAreaID, &p.Name, &location,
			&p.Description, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		// Undecodable rows are returned without geometry; rendering skips them.
		if g, err := domain.DecodePassLocation(location); err == nil {
			p.Location = g
		} else {
			slog.WarnContext(ctx, "stored pass location unreadable", "pass_id", p.ID, "error", err)
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// CreateDriveArea inserts a drawn area.
func (r *AnnotationRepo) CreateDriveArea(ctx context.Context, in domain.NewDriveArea) (*domain.DriveArea, error) {
	return insertArea(ctx, r.db.Pool, in)
}

// CreatePassWithArea inserts the micro-area and the pass in one transaction.
func (r *AnnotationRepo) CreatePassWithArea(ctx context.Context, area domain.NewDriveArea, pass domain.NewHuntingPass) (*domain.HuntingPass, *domain.DriveArea, error) {
	var (
		createdArea *domain.DriveArea
		createdPass *domain.HuntingPass
	)
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		a, err := insertArea(ctx, tx, area)
		if err != nil {
			return err
		}

		location, err := json.Marshal(geojson.NewGeometry(pass.Location))
		if err != nil {
			return fmt.Errorf("encode location: %w", err)
		}

		p := domain.HuntingPass{
			TeamID:      pass.TeamID,
			DriveAreaID: a.ID,
			Name:        pass.Name,
			Location:    geojson.NewGeometry(pass.Location),
			Description: pass.Description,
			CreatedBy:   pass.CreatedBy,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO hunting_passes (team_id, drive_area_id, name, location, geom, description, created_by)
			VALUES ($1, $2, $3, $4::jsonb, ST_SetSRID(ST_MakePoint($5, $6), 4326), NULLIF($7, ''), NULLIF($8, ''))
			RETURNING id, created_at
		`, p.TeamID, p.DriveAreaID, p.Name, location, pass.Location.Lon(), pass.Location.Lat(),
			p.Description, p.CreatedBy,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert hunting_passes: %w", err)
		}

		createdArea, createdPass = a, &p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return createdPass, createdArea, nil
}

// ListOrphanPassAreas returns pass micro-areas no pass references.
func (r *AnnotationRepo) ListOrphanPassAreas(ctx context.Context, createdBefore time.Time, limit int) ([]domain.DriveArea, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+areaColumns+`
		FROM drive_areas a
		WHERE a.kind = 'pass'
		  AND a.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM hunting_passes p WHERE p.drive_area_id = a.id)
		ORDER BY a.created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectAreas(rows)
}

// DeleteDriveArea deletes one area. Areas still referenced by a pass are
// protected by the foreign key.
func (r *AnnotationRepo) DeleteDriveArea(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM drive_areas WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return domain.NewValidationError("id", "area is still referenced by a pass")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertArea(ctx context.Context, q queryRower, in domain.NewDriveArea) (*domain.DriveArea, error) {
	feature := domain.BoundaryFeature(in.Boundary)
	boundary, err := json.Marshal(feature)
	if err != nil {
		return nil, fmt.Errorf("encode boundary: %w", err)
	}

	a := domain.DriveArea{
		TeamID:    in.TeamID,
		Name:      in.Name,
		Kind:      in.Kind,
		Boundary:  feature,
		CreatedBy: in.CreatedBy,
	}
	err = q.QueryRow(ctx, `
		INSERT INTO drive_areas (team_id, name, kind, boundary, geom, created_by)
		VALUES ($1, $2, $3, $4::jsonb, ST_SetSRID(ST_GeomFromGeoJSON($4::jsonb -> 'geometry'), 4326), NULLIF($5, ''))
		RETURNING id, created_at
	`, a.TeamID, a.Name, a.Kind, boundary, a.CreatedBy).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert drive_areas: %w", err)
	}
	return &a, nil
}

func collectAreas(rows pgx.Rows) ([]domain.DriveArea, error) {
	defer rows.Close()

	areas := []domain.DriveArea{}
	for rows.Next() {
		var a domain.DriveArea
		var boundary []byte
		if err := rows.Scan(&a.ID, &a.TeamID, &a.Name, &a.Kind, &boundary, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		if f, err := domain.DecodeBoundary(boundary); err == nil {
			a.Boundary = f
		} else {
			slog.Warn("stored area boundary unreadable", "area_id", a.ID, "error", err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return areas, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23503"
}
