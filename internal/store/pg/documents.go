package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymstudio.app/internal/coach"
)

const documentColumns = `id, coach_id, type, file_url, status, verified, coalesce(verified_by, ''), verified_at,
	coalesce(review_note, ''), coalesce(reviewed_by, ''), uploaded_at`

func scanDocument(row scanner) (coach.Document, error) {
	var (
		d          coach.Document
		verifiedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.CoachID, &d.Type, &d.FileURL, &d.Status, &d.Verified, &d.VerifiedBy, &verifiedAt,
		&d.ReviewNote, &d.ReviewedBy, &d.UploadedAt); err != nil {
		return coach.Document{}, err
	}
	d.VerifiedAt = timePtr(verifiedAt)
	return d, nil
}

const certificationColumns = `id, coach_id, name, institution, obtained_date, expiry_date, coalesce(file_url, ''),
	verified, coalesce(verified_by, ''), verified_at`

func scanCertification(row scanner) (coach.Certification, error) {
	var (
		c                  coach.Certification
		expiry, verifiedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CoachID, &c.Name, &c.Institution, &c.ObtainedDate, &expiry, &c.FileURL,
		&c.Verified, &c.VerifiedBy, &verifiedAt); err != nil {
		return coach.Certification{}, err
	}
	c.ExpiryDate = timePtr(expiry)
	c.VerifiedAt = timePtr(verifiedAt)
	return c, nil
}

func (s *Store) DocumentByID(ctx context.Context, id string) (coach.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `select `+documentColumns+` from documents where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Document{}, coach.NotFoundf("document not found")
	}
	return d, err
}

func (s *Store) ListDocuments(ctx context.Context, coachID string) ([]coach.Document, error) {
	rows, err := s.db.QueryContext(ctx, `select `+documentColumns+` from documents where coach_id = $1 order by type`, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coach.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentReview sets the review fields. verified always mirrors status.
func (s *Store) UpdateDocumentReview(ctx context.Context, id string, r coach.DocumentReview) (coach.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `
		update documents set status = $2, verified = ($2 = 'verified'), verified_by = $3, verified_at = $4,
			review_note = $5, reviewed_by = $6
		where id = $1
		returning `+documentColumns,
		id, r.Status, nullString(r.VerifiedBy), nullTime(r.VerifiedAt), nullString(r.ReviewNote), nullString(r.ReviewedBy)))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Document{}, coach.NotFoundf("document not found")
	}
	return d, err
}

// ReplaceDocument upserts by (coach, type) and resets every verification field.
func (s *Store) ReplaceDocument(ctx context.Context, doc coach.Document) (coach.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `
		insert into documents (id, coach_id, type, file_url, status, verified, uploaded_at)
		values ($1, $2, $3, $4, 'pending', false, $5)
		on conflict (coach_id, type) do update set
			file_url = excluded.file_url,
			status = 'pending',
			verified = false,
			verified_by = null,
			verified_at = null,
			review_note = null,
			reviewed_by = null,
			uploaded_at = excluded.uploaded_at
		returning `+documentColumns,
		doc.ID, doc.CoachID, doc.Type, doc.FileURL, doc.UploadedAt))
	if err != nil {
		return coach.Document{}, mapErr(coach.StepInsertDocuments, err)
	}
	return d, nil
}

func (s *Store) ListCertifications(ctx context.Context, coachID string) ([]coach.Certification, error) {
	rows, err := s.db.QueryContext(ctx, `select `+certificationColumns+` from certifications where coach_id = $1 order by obtained_date desc, id`, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coach.Certification
	for rows.Next() {
		c, err := scanCertification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCertificationReview(ctx context.Context, id string, verified bool, by string, at *time.Time) (coach.Certification, error) {
	c, err := scanCertification(s.db.QueryRowContext(ctx, `
		update certifications set verified = $2, verified_by = $3, verified_at = $4
		where id = $1
		returning `+certificationColumns, id, verified, nullString(by), nullTime(at)))
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Certification{}, coach.NotFoundf("certification not found")
	}
	return c, err
}
