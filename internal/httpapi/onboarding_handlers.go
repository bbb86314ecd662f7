package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gymstudio.app/internal/audit"
	"gymstudio.app/internal/coach"
)

// onboardingPayload is the JSON "payload" part of the onboarding form. Files travel as separate
// parts: "avatar", "document_<type>" and "certification_<index>".
type onboardingPayload struct {
	Password string `json:"password"`
	Profile  struct {
		FullName        string   `json:"full_name"`
		Phone           string   `json:"phone"`
		BirthDate       string   `json:"birth_date"`
		Address         string   `json:"address"`
		Bio             string   `json:"bio"`
		Specialties     []string `json:"specialties"`
		YearsExperience int      `json:"years_experience"`
	} `json:"profile"`
	Bank           coach.BankDetails      `json:"bank"`
	Emergency      coach.EmergencyContact `json:"emergency_contact"`
	Certifications []struct {
		Name         string `json:"name"`
		Institution  string `json:"institution"`
		ObtainedDate string `json:"obtained_date"`
		ExpiryDate   string `json:"expiry_date"`
	} `json:"certifications"`
}

const (
	avatarField       = "avatar"
	documentPrefix    = "document_"
	certificationPref = "certification_"
)

func (a *API) handleSubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub, err := parseOnboarding(r.MultipartForm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub.Token = chi.URLParam(r, "token")

	res, err := a.svc.SubmitOnboarding(r.Context(), sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	audit.Record(r.Context(), audit.EventOnboardingSubmitted, map[string]any{
		"coach_id":        res.CoachID,
		"invitation_id":   res.InvitationID,
		"missing_uploads": len(res.MissingUploads),
	})
	writeJSON(w, http.StatusCreated, res)
}

func parseOnboarding(form *multipart.Form) (coach.OnboardingSubmission, error) {
	var sub coach.OnboardingSubmission
	raw := form.Value["payload"]
	if len(raw) != 1 {
		return sub, coach.Validationf("payload field is required")
	}
	var p onboardingPayload
	dec := json.NewDecoder(strings.NewReader(raw[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return sub, coach.Validationf("payload: %v", err)
	}

	sub.Password = p.Password
	sub.Profile = coach.Profile{
		FullName:        p.Profile.FullName,
		Phone:           p.Profile.Phone,
		Address:         p.Profile.Address,
		Bio:             p.Profile.Bio,
		Specialties:     p.Profile.Specialties,
		YearsExperience: p.Profile.YearsExperience,
	}
	if p.Profile.BirthDate != "" {
		birth, err := parseDate(p.Profile.BirthDate)
		if err != nil {
			return sub, coach.Validationf("birth_date: expected YYYY-MM-DD")
		}
		sub.Profile.BirthDate = birth
	}
	sub.Bank = p.Bank
	sub.Emergency = p.Emergency

	for i, c := range p.Certifications {
		in := coach.CertificationInput{Name: c.Name, Institution: c.Institution}
		if c.ObtainedDate != "" {
			obtained, err := parseDate(c.ObtainedDate)
			if err != nil {
				return sub, coach.Validationf("certifications[%d].obtained_date: expected YYYY-MM-DD", i)
			}
			in.ObtainedDate = obtained
		}
		expiry, err := optionalDate(fmt.Sprintf("certifications[%d].expiry_date", i), c.ExpiryDate)
		if err != nil {
			return sub, err
		}
		in.ExpiryDate = expiry
		sub.Certifications = append(sub.Certifications, in)
	}

	sub.Documents = make(map[coach.DocumentType]coach.Upload)
	for field, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		up, err := readUpload(headers[0])
		if err != nil {
			return sub, coach.Validationf("%s: %v", field, err)
		}
		switch {
		case field == avatarField:
			sub.Avatar = &up
		case strings.HasPrefix(field, documentPrefix):
			sub.Documents[coach.DocumentType(strings.TrimPrefix(field, documentPrefix))] = up
		case strings.HasPrefix(field, certificationPref):
			var idx int
			if _, err := fmt.Sscanf(strings.TrimPrefix(field, certificationPref), "%d", &idx); err != nil ||
				idx < 0 || idx >= len(sub.Certifications) {
				return sub, coach.Validationf("%s does not match a certification entry", field)
			}
			sub.Certifications[idx].File = &up
		default:
			return sub, coach.Validationf("unexpected file field %q", field)
		}
	}
	return sub, nil
}

func readUpload(h *multipart.FileHeader) (coach.Upload, error) {
	f, err := h.Open()
	if err != nil {
		return coach.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return coach.Upload{}, err
	}
	if len(data) == 0 {
		return coach.Upload{}, errors.New("file is empty")
	}
	ct := h.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return coach.Upload{Filename: h.Filename, ContentType: ct, Data: data}, nil
}
