package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/logger"
	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
	"github.com/information-sharing-networks/provenance-demo/internal/record"
	"github.com/information-sharing-networks/provenance-demo/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleSignEDP seals an energy data provider record.
//
//	@Summary		Seal an EDP provenance record
//	@Description	Assembles the permission, origin and transfer steps for a
//	@Description	meter readings hand-off and seals them with the service's
//	@Description	signing key. The response body is the encoded record
//	@Description	artifact that travels with the readings.
//	@Tags			Records
//	@Accept			json
//	@Produce		json
//	@Param			request	body	record.EDPRecordRequest	true	"sealing request"
//	@Success		200
//	@Failure		400	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/v1/sign/edp [post]
func (s *Server) handleSignEDP(w http.ResponseWriter, r *http.Request) {
	var req record.EDPRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, provenance.WrapDecodeError(err, "invalid request body"))
		return
	}

	artifact, err := s.records.CreateEDPRecord(r.Context(), s.signer, &req)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	s.archiveArtifact(r, store.RecordTypeEDP, artifact)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

// handleSignCAP verifies an EDP artifact and seals the extended CAP record.
//
//	@Summary		Seal a CAP provenance record
//	@Description	Verifies the EDP record embedded in the request, finds the
//	@Description	transfer addressed to the CAP, appends the receipt,
//	@Description	permission, origin, processing and onward transfer steps,
//	@Description	and seals the extended chain.
//	@Tags			Records
//	@Accept			json
//	@Produce		json
//	@Param			request	body	record.CAPRecordRequest	true	"sealing request"
//	@Success		200
//	@Failure		400	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/v1/sign/cap [post]
func (s *Server) handleSignCAP(w http.ResponseWriter, r *http.Request) {
	var req record.CAPRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, provenance.WrapDecodeError(err, "invalid request body"))
		return
	}

	artifact, err := s.records.CreateCAPRecord(r.Context(), s.signer, s.certProvider, &req)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	s.archiveArtifact(r, store.RecordTypeCAP, artifact)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact)
}

// decodedRecordResponse is the verified view of a record artifact.
type decodedRecordResponse struct {
	Provenance string                       `json:"provenance"`
	State      provenance.VerificationState `json:"state"`
	Steps      []map[string]any             `json:"steps"`
	Signers    []provenance.SignerIdentity  `json:"signers"`
}

// handleDecode verifies a record artifact and returns its decoded steps.
//
//	@Summary		Decode and verify a provenance record
//	@Description	Accepts an encoded record artifact, verifies every
//	@Description	signature envelope against the trust framework root CA,
//	@Description	and returns the decoded steps with the signer of each hop.
//	@Tags			Records
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	decodedRecordResponse
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/v1/decode [post]
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondWithError(w, r, provenance.WrapDecodeError(err, "failed to read request body"))
		return
	}

	// adopt whatever trust framework the artifact declares - the decode
	// endpoint inspects records, it does not extend them
	rec, err := provenance.Decode("", body)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	if err := rec.Verify(s.certProvider); err != nil {
		RespondWithError(w, r, err)
		return
	}

	resp := decodedRecordResponse{
		Provenance: rec.TrustFramework(),
		State:      rec.State(),
		Signers:    rec.Signers(),
	}
	for _, step := range rec.Steps() {
		fields, err := step.AsMap()
		if err != nil {
			RespondWithError(w, r, err)
			return
		}
		resp.Steps = append(resp.Steps, fields)
	}

	RespondWithJSON(w, http.StatusOK, resp)
}

// handleListRecords returns the most recently sealed records.
//
//	@Summary	List sealed records
//	@Tags		Archive
//	@Produce	json
//	@Success	200	{array}	store.ArchivedRecord
//	@Router		/api/v1/records [get]
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.archive.List(r.Context(), 100)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}
	if records == nil {
		records = []store.ArchivedRecord{}
	}
	RespondWithJSON(w, http.StatusOK, records)
}

// handleGetRecord returns one sealed record's archive entry.
//
//	@Summary	Get a sealed record by id
//	@Tags		Archive
//	@Produce	json
//	@Success	200	{object}	store.ArchivedRecord
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/records/{recordID} [get]
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordID")

	rec, err := s.archive.Get(r.Context(), id)
	if err == store.ErrNotFound {
		RespondWithJSON(w, http.StatusNotFound, &ErrorResponse{
			StatusCode:     http.StatusNotFound,
			StatusCodeText: http.StatusText(http.StatusNotFound),
			ErrorCode:      "not_found",
			Message:        "no sealed record with that id",
			ErrorDateTime:  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, rec)
}

// archiveArtifact indexes a sealed artifact. Archiving is best-effort: a
// storage failure is logged but never fails the sealing request.
func (s *Server) archiveArtifact(r *http.Request, recordType store.RecordType, artifact []byte) {
	if s.archive == nil {
		return
	}

	reqLogger := logger.ContextRequestLogger(r.Context())

	rec, err := provenance.Decode("", artifact)
	if err != nil {
		reqLogger.Error("failed to decode sealed artifact for archiving", slog.String("error", err.Error()))
		return
	}

	entry := &store.ArchivedRecord{
		ID:             uuid.NewString(),
		RecordType:     recordType,
		TrustFramework: rec.TrustFramework(),
		StepCount:      len(rec.Steps()),
		SignerKeyID:    s.signer.KeyID(),
		ArtifactSHA256: crypto.DigestSHA256Hex(artifact),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.archive.Insert(r.Context(), entry); err != nil {
		reqLogger.Error("failed to archive sealed record",
			slog.String("record_id", entry.ID),
			slog.String("error", err.Error()))
	}
}
