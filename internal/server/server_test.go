package server

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/information-sharing-networks/provenance-demo/internal/config"
	"github.com/information-sharing-networks/provenance-demo/internal/keystore"
	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
	"github.com/information-sharing-networks/provenance-demo/internal/record"
	"github.com/information-sharing-networks/provenance-demo/internal/testutil"
)

const (
	testTrustFramework = "https://registry.example/trust-framework"
	testScheme         = "https://registry.example/scheme/perseus"

	edpMember  = "https://directory.example/member/edp"
	capMember  = "https://directory.example/member/cap"
	bankMember = "https://directory.example/member/bank"
)

func testConfig() *config.ServerEnvironment {
	return &config.ServerEnvironment{
		Environment:     "test",
		Host:            "127.0.0.1",
		Port:            8080,
		MaxRequestBytes: 1 << 20,
		RateLimitRPS:    0,
	}
}

// newMemberServer builds a server that signs as the given trust framework
// member, anchored to the shared test CA.
func newMemberServer(t *testing.T, ca *testutil.CA, member string) *Server {
	t.Helper()

	dir := t.TempDir()
	caPath := filepath.Join(dir, "root-ca.pem")
	if err := os.WriteFile(caPath, ca.PEM(t), 0600); err != nil {
		t.Fatalf("failed to write CA bundle: %v", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	certProvider, err := keystore.NewCertificateProvider(context.Background(), nil, caPath, quiet)
	if err != nil {
		t.Fatalf("failed to build certificate provider: %v", err)
	}

	leaf, key := ca.IssueLeaf(t, member)
	signer, err := keystore.NewSigner(key, []*x509.Certificate{leaf})
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}

	cfg := testConfig()
	cfg.TrustFrameworkURL = testTrustFramework
	cfg.SchemeURL = testScheme

	return NewServer(cfg, quiet, signer, certProvider, nil, nil)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func validEDPRequest() *record.EDPRecordRequest {
	return &record.EDPRecordRequest{
		FromDate:          time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		ToDate:            time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
		PermissionGranted: time.Date(2024, 9, 20, 12, 16, 11, 0, time.UTC),
		PermissionExpires: time.Date(2025, 9, 20, 12, 16, 11, 0, time.UTC),
		ServiceURL:        "https://api.edp.example",
		Account:           "https://bank.example/account/12345",
		FAPIID:            "C0AD3159-186F-4E2D-9C59-EA68D0A1BFBA",
		CAPMember:         capMember,
		OriginURL:         "https://registry.example/scheme/electricity",
		OriginLicenceURL:  "https://smartenergycodecompany.co.uk/documents/sec",
	}
}

func TestHandleHealth(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	if rr.Body.String() != `{"status":"healthy"}` {
		t.Errorf("got body %s", rr.Body.String())
	}
}

func TestHandleSignEDP(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	rr := postJSON(t, srv.Router(), "/api/v1/sign/edp", validEDPRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}

	rec, err := provenance.Decode(testTrustFramework, rr.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not a record artifact: %v", err)
	}
	if err := rec.Verify(&testutil.Anchor{Roots: ca.Pool()}); err != nil {
		t.Fatalf("sealed record does not verify: %v", err)
	}
	if got := len(rec.Steps()); got != 3 {
		t.Errorf("got %d steps, want 3", got)
	}
}

func TestHandleSignEDPValidation(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	req := validEDPRequest()
	req.Account = ""

	rr := postJSON(t, srv.Router(), "/api/v1/sign/edp", req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if resp.ErrorCode != "validation" {
		t.Errorf("got error code %s, want validation", resp.ErrorCode)
	}
}

func TestHandleSignEDPMalformedBody(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sign/edp", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rr.Code)
	}
}

func TestHandleSignCAP(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	edpServer := newMemberServer(t, ca, edpMember)
	capServer := newMemberServer(t, ca, capMember)

	edpResp := postJSON(t, edpServer.Router(), "/api/v1/sign/edp", validEDPRequest())
	if edpResp.Code != http.StatusOK {
		t.Fatalf("EDP sealing failed: %d %s", edpResp.Code, edpResp.Body.String())
	}

	capReq := &record.CAPRecordRequest{
		EDPRecord:            edpResp.Body.Bytes(),
		CAPMemberID:          capMember,
		BankMemberID:         bankMember,
		CAPAccount:           "https://bank.example/account/12345",
		CAPPermissionGranted: time.Date(2024, 9, 20, 12, 17, 5, 0, time.UTC),
		CAPPermissionExpires: time.Date(2025, 9, 20, 12, 17, 5, 0, time.UTC),
		GridIntensityOrigin:  "https://api.carbonintensity.org.uk/regional",
		GridIntensityLicence: "https://creativecommons.org/licenses/by/4.0/",
		Postcode:             "OX1",
		EDPServiceURL:        "https://api.edp.example",
		EDPMemberID:          edpMember,
		BankServiceURL:       "https://api.cap.example",
		FromDate:             time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		ToDate:               time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
	}

	capResp := postJSON(t, capServer.Router(), "/api/v1/sign/cap", capReq)
	if capResp.Code != http.StatusOK {
		t.Fatalf("CAP sealing failed: %d %s", capResp.Code, capResp.Body.String())
	}

	rec, err := provenance.Decode(testTrustFramework, capResp.Body.Bytes())
	if err != nil {
		t.Fatalf("response is not a record artifact: %v", err)
	}
	if err := rec.Verify(&testutil.Anchor{Roots: ca.Pool()}); err != nil {
		t.Fatalf("sealed record does not verify: %v", err)
	}
	if got := len(rec.Steps()); got != 8 {
		t.Errorf("got %d steps, want 8", got)
	}
	if got := len(rec.Envelopes()); got != 2 {
		t.Errorf("got %d envelopes, want 2", got)
	}
}

func TestHandleDecode(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	sealed := postJSON(t, srv.Router(), "/api/v1/sign/edp", validEDPRequest())
	if sealed.Code != http.StatusOK {
		t.Fatalf("sealing failed: %d", sealed.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode", bytes.NewReader(sealed.Body.Bytes()))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp decodedRecordResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Provenance != testTrustFramework {
		t.Errorf("got provenance %s", resp.Provenance)
	}
	if resp.State != provenance.StateVerified {
		t.Errorf("got state %s, want %s", resp.State, provenance.StateVerified)
	}
	if len(resp.Steps) != 3 {
		t.Errorf("got %d steps, want 3", len(resp.Steps))
	}
	if len(resp.Signers) != 1 || resp.Signers[0].Member != edpMember {
		t.Errorf("got signers %v", resp.Signers)
	}
}

func TestHandleDecodeTamperedRecord(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	sealed := postJSON(t, srv.Router(), "/api/v1/sign/edp", validEDPRequest())
	if sealed.Code != http.StatusOK {
		t.Fatalf("sealing failed: %d", sealed.Code)
	}

	tampered := bytes.Replace(sealed.Body.Bytes(), []byte(`"measure":"import"`), []byte(`"measure":"export"`), 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode", bytes.NewReader(tampered))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if resp.ErrorCode != string(provenance.ErrCodeSignatureInvalid) {
		t.Errorf("got error code %s, want %s", resp.ErrorCode, provenance.ErrCodeSignatureInvalid)
	}
}

func TestHandleJWKS(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d", rr.Code)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &jwks); err != nil {
		t.Fatalf("jwks body is not JSON: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(jwks.Keys))
	}
	if kid, _ := jwks.Keys[0]["kid"].(string); kid == "" {
		t.Errorf("jwks key has no kid")
	}
}

func TestArchiveRoutesDisabledWithoutDatabase(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404 when the archive is disabled", rr.Code)
	}
}

func TestRequestSizeLimitApplied(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	srv := newMemberServer(t, ca, edpMember)

	big := bytes.Repeat([]byte("x"), int(testConfig().MaxRequestBytes)+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sign/edp", bytes.NewReader(big))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("got status %d, want 413", rr.Code)
	}
	if rr.Header().Get("X-Max-Request-Size") == "" {
		t.Errorf("response is missing the X-Max-Request-Size header")
	}
}
