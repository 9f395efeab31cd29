package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"raggingwatch/internal/complaint"
	"raggingwatch/internal/util"
)

func (s testServer) registerStudent(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  "Str0ng-pass",
		"full_name": "Asha Rao",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected register 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	token := s.sender.token(email)
	if token == "" {
		t.Fatalf("expected a verification token for %s", email)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected verify 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	return s.loginStudent(t, email, "Str0ng-pass")
}

func (s testServer) loginStudent(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	c := findCookie(rec, "user-session")
	if c == nil || c.Value == "" {
		t.Fatalf("expected user-session cookie")
	}
	return c
}

// loginAdmin returns the session cookie, the csrf cookie and the csrf token
// from the response body.
func (s testServer) loginAdmin(t *testing.T) (*http.Cookie, *http.Cookie, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": testAdminEmail, "password": testAdminPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin login 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	decodeBody(t, rec, &out)
	token, _ := out["csrf_token"].(string)
	sess := findCookie(rec, "admin-session")
	csrf := findCookie(rec, "admin-csrf")
	if sess == nil || csrf == nil || token == "" {
		t.Fatalf("expected admin-session and admin-csrf cookies and a csrf token")
	}
	if csrf.Value != token {
		t.Fatalf("csrf cookie and token differ")
	}
	return sess, csrf, token
}

func TestStudentRegistrationAndLogin(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":     "Asha@Uni.test",
		"password":  "Str0ng-pass",
		"full_name": "Asha Rao",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("registration response must not mention the password hash: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "asha@uni.test", "password": "Str0ng-pass"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected unverified login to be refused with 403, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":     "asha@uni.test",
		"password":  "Str0ng-pass",
		"full_name": "Asha Again",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected duplicate registration 409, got %d", rec.Code)
	}

	token := s.sender.token("asha@uni.test")
	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected verify 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{"token": token})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected reused token 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "asha@uni.test", "password": "wrong-Pass1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d", rec.Code)
	}
	var apiErr util.APIError
	decodeBody(t, rec, &apiErr)
	if apiErr.Message != "Invalid email or password" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}

	cookie := s.loginStudent(t, "asha@uni.test", "Str0ng-pass")
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" || cookie.MaxAge != 3600 {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
	if cookie.Secure {
		t.Fatalf("expected secure=false with COOKIE_SECURE_MODE=never")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "asha@uni.test") {
		t.Fatalf("expected me 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	if cleared := findCookie(rec, "user-session"); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected logout to clear the session cookie")
	}
	rec = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected a revoked session to be rejected, got %d", rec.Code)
	}
}

func TestAdminCannotLoginAsStudent(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": testAdminEmail, "password": testAdminPassword})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": testAdminEmail, "password": "nope-Nope1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad admin password, got %d", rec.Code)
	}
}

func TestStudentComplaintOwnership(t *testing.T) {
	s := newTestServer(t)
	asha := s.registerStudent(t, "asha@uni.test")
	ravi := s.registerStudent(t, "ravi@uni.test")

	rec := s.submitMultipart(t, reportFields(), &filePart{name: "p.png", contentType: "image/png", data: []byte("png-bytes")}, asha)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	anon := reportFields()
	anon["anonymous"] = "true"
	rec = s.submitMultipart(t, anon, nil, asha)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected anonymous 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints", nil, asha)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var mine struct {
		Items []complaint.View `json:"items"`
	}
	decodeBody(t, rec, &mine)
	if len(mine.Items) != 1 || mine.Items[0].Anonymous {
		t.Fatalf("expected only the attributed complaint, got %+v", mine.Items)
	}
	id := mine.Items[0].ID

	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints/"+id, nil, asha)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected owner view 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints/"+id+"/evidence", nil, asha)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/v1/evidence/") {
		t.Fatalf("expected evidence handle, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints/"+id, nil, ravi)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected another student to get 404, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints/"+id+"/evidence", nil, ravi)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected another student's evidence request to 404, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/complaints", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}

func TestAdminWorkflow(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/reports", reportJSON())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var receipt complaint.Receipt
	decodeBody(t, rec, &receipt)

	student := s.registerStudent(t, "asha@uni.test")
	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints", nil, student)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected a student session to be refused on admin routes, got %d", rec.Code)
	}
	forged := &http.Cookie{Name: "admin-session", Value: student.Value}
	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints", nil, forged)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected a student token in the admin slot to be refused, got %d", rec.Code)
	}

	sess, csrf, token := s.loginAdmin(t)
	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints?status=pending&page_size=10", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []complaint.AdminView `json:"items"`
		Total int                   `json:"total"`
	}
	decodeBody(t, rec, &list)
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].TrackingNumber != receipt.TrackingNumber {
		t.Fatalf("unexpected list %+v", list)
	}
	id := list.Items[0].ID

	transition := map[string]string{
		"status":         "Under Review",
		"internal_notes": "Spoke to hostel warden",
		"public_notes":   "We are looking into this.",
	}
	rec = s.do(t, http.MethodPost, "/api/v1/admin/complaints/"+id+"/transition", transition, sess, csrf)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without the csrf header, got %d", rec.Code)
	}

	raw, _ := json.Marshal(transition)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/complaints/"+id+"/transition", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(sess)
	req.AddCookie(csrf)
	res := httptest.NewRecorder()
	s.router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected transition 200, got %d body=%s", res.Code, res.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints/"+id+"/history", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected history 200, got %d", rec.Code)
	}
	var history struct {
		Items []map[string]any `json:"items"`
	}
	decodeBody(t, rec, &history)
	if len(history.Items) != 2 || history.Items[1]["status"] != "Under Review" {
		t.Fatalf("unexpected history %+v", history.Items)
	}
	if history.Items[1]["acting_admin_id"] == nil {
		t.Fatalf("expected the transition to record the acting admin")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints/"+id, nil, sess, csrf)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Spoke to hostel warden") {
		t.Fatalf("expected admin view with internal notes, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/status/"+url.PathEscape(receipt.TrackingNumber), nil)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Under Review") || !strings.Contains(body, "We are looking into this.") {
		t.Fatalf("expected public view to reflect the transition, got %d body=%s", rec.Code, body)
	}
	if strings.Contains(body, "Spoke to hostel warden") {
		t.Fatalf("public view leaked internal notes")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/stats", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stats 200, got %d", rec.Code)
	}
	var stats map[string]int
	decodeBody(t, rec, &stats)
	if stats["total"] != 1 || stats["under_review"] != 1 || stats["pending"] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}

	for _, path := range []string{"monthly", "categories", "statuses", "locations", "response-times"} {
		rec = s.do(t, http.MethodGet, "/api/v1/admin/analytics/"+path, nil, sess, csrf)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d body=%s", path, rec.Code, rec.Body.String())
		}
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/export.xlsx?status=all", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected export 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected export content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container")
	}
	rec = s.do(t, http.MethodGet, "/api/v1/admin/export.xlsx?status=archived", nil, sess, csrf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown export status, got %d", rec.Code)
	}
}

func TestAdminTransitionErrors(t *testing.T) {
	s := newTestServer(t)
	sess, csrf, token := s.loginAdmin(t)
	post := func(id string, body map[string]string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/complaints/"+id+"/transition", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", token)
		req.AddCookie(sess)
		req.AddCookie(csrf)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("missing-id", map[string]string{"status": "Resolved"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown complaint, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/reports", reportJSON())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/admin/complaints", nil, sess, csrf)
	var list struct {
		Items []complaint.AdminView `json:"items"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected one complaint, got %d", len(list.Items))
	}
	if rec := post(list.Items[0].ID, map[string]string{"status": "Archived"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown status, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminLogoutRevokesSession(t *testing.T) {
	s := newTestServer(t)
	sess, csrf, _ := s.loginAdmin(t)
	rec := s.do(t, http.MethodGet, "/api/v1/admin/me", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin me 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/admin/logout", nil, sess, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	if findCookie(rec, "admin-csrf") == nil {
		t.Fatalf("expected logout to clear the csrf cookie")
	}
	rec = s.do(t, http.MethodGet, "/api/v1/admin/me", nil, sess, csrf)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked admin session 401, got %d", rec.Code)
	}
}
