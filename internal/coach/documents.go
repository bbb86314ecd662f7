package coach

import (
	"context"
	"strings"

	"gymstudio.app/internal/ids"
	"gymstudio.app/internal/obs"
	"gymstudio.app/internal/storage"
)

// VerificationSummary is derived from the document rows and never stored.
type VerificationSummary struct {
	Total    int  `json:"total"`
	Verified int  `json:"verified"`
	Rejected int  `json:"rejected"`
	Pending  int  `json:"pending"`
	Complete bool `json:"complete"`
}

// SetDocumentVerified marks a document verified, or back to pending.
func (s *Service) SetDocumentVerified(ctx context.Context, documentID string, verified bool, reviewerID string) (Document, error) {
	if err := requireReviewer(ctx); err != nil {
		return Document{}, err
	}
	r := DocumentReview{Status: DocumentPending}
	if verified {
		at := s.now()
		r = DocumentReview{Status: DocumentVerified, VerifiedBy: reviewerID, VerifiedAt: &at, ReviewedBy: reviewerID}
	}
	d, err := s.store.UpdateDocumentReview(ctx, documentID, r)
	if err != nil {
		return Document{}, err
	}
	obs.Info(ctx, "document reviewed", map[string]any{"document_id": d.ID, "coach_id": d.CoachID, "status": d.Status})
	return d, nil
}

// RejectDocument marks a document rejected with a note for the coach.
func (s *Service) RejectDocument(ctx context.Context, documentID, reviewerID, note string) (Document, error) {
	if err := requireReviewer(ctx); err != nil {
		return Document{}, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return Document{}, Validationf("rejection note is required")
	}
	d, err := s.store.UpdateDocumentReview(ctx, documentID, DocumentReview{
		Status:     DocumentRejected,
		ReviewNote: note,
		ReviewedBy: reviewerID,
	})
	if err != nil {
		return Document{}, err
	}
	obs.Info(ctx, "document reviewed", map[string]any{"document_id": d.ID, "coach_id": d.CoachID, "status": d.Status})
	return d, nil
}

// ReuploadDocument stores a new file and resets the document's verification.
func (s *Service) ReuploadDocument(ctx context.Context, coachID string, t DocumentType, f Upload) (Document, error) {
	if !t.Valid() {
		return Document{}, Validationf("unknown document type %q", t)
	}
	if len(f.Data) == 0 {
		return Document{}, Validationf("file is required")
	}
	c, err := s.store.CoachByID(ctx, coachID)
	if err != nil {
		return Document{}, err
	}
	if c.State == StateRejected {
		return Document{}, InvalidStatef("coach is %s", c.State)
	}
	doc := Document{
		ID:         ids.New(),
		CoachID:    coachID,
		Type:       t,
		Status:     DocumentPending,
		UploadedAt: s.now(),
	}
	key, err := storage.ObjectKey(coachID, string(t), doc.ID, f.Filename)
	if err != nil {
		return Document{}, Validationf("invalid file name")
	}
	doc.FileURL, err = s.objects.Upload(ctx, storage.BucketDocuments, key, f.Data, f.ContentType)
	if err != nil {
		obs.RecordUploadFailure(storage.BucketDocuments)
		return Document{}, Upstream(StepUploadFiles, "document upload failed", err)
	}
	out, err := s.store.ReplaceDocument(ctx, doc)
	if err != nil {
		// the previous row and its file stay in place
		if derr := s.objects.Delete(context.WithoutCancel(ctx), storage.BucketDocuments, key); derr != nil {
			obs.Warn(ctx, "orphaned document not removed", map[string]any{"key": key, "error": derr.Error()})
			return Document{}, markPartial(AtStep(StepInsertDocuments, err))
		}
		return Document{}, AtStep(StepInsertDocuments, err)
	}
	return out, nil
}

func (s *Service) Documents(ctx context.Context, coachID string) ([]Document, error) {
	return s.store.ListDocuments(ctx, coachID)
}

func (s *Service) Certifications(ctx context.Context, coachID string) ([]Certification, error) {
	return s.store.ListCertifications(ctx, coachID)
}

// Summary counts documents by status. Complete needs every required type verified.
func (s *Service) Summary(ctx context.Context, coachID string) (VerificationSummary, error) {
	docs, err := s.store.ListDocuments(ctx, coachID)
	if err != nil {
		return VerificationSummary{}, err
	}
	return Summarize(docs), nil
}

func Summarize(docs []Document) VerificationSummary {
	var sum VerificationSummary
	verified := make(map[DocumentType]bool, len(docs))
	for _, d := range docs {
		sum.Total++
		switch d.Status {
		case DocumentVerified:
			sum.Verified++
			verified[d.Type] = true
		case DocumentRejected:
			sum.Rejected++
		default:
			sum.Pending++
		}
	}
	sum.Complete = true
	for _, t := range RequiredDocuments {
		if !verified[t] {
			sum.Complete = false
			break
		}
	}
	return sum
}

// SetCertificationVerified toggles certification verification.
func (s *Service) SetCertificationVerified(ctx context.Context, certID string, verified bool, reviewerID string) (Certification, error) {
	if err := requireReviewer(ctx); err != nil {
		return Certification{}, err
	}
	if !verified {
		return s.store.UpdateCertificationReview(ctx, certID, false, "", nil)
	}
	at := s.now()
	return s.store.UpdateCertificationReview(ctx, certID, true, reviewerID, &at)
}
