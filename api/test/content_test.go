package test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/swasthik/sarathi/core/content"
	"github.com/swasthik/sarathi/core/course"
)

type contentTest struct {
	*TestEnv
}

func TestContent(t *testing.T) {
	env, err := NewTestEnv(t, "content_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ct := &courseTest{TestEnv: env}
	tt := &contentTest{env}

	c := ct.createCourseOK(t)
	locked := ct.createCourseOK(t)

	videoBytes := []byte("fake-mp4-bytes-0123456789")
	pdfBytes := []byte("%PDF-1.4 fake notes")

	vid := tt.uploadOK(t, c.ID, "video", "Lecture One!.mp4", 2, videoBytes)
	pdf := tt.uploadOK(t, c.ID, "pdf", "notes.pdf", 1, pdfBytes)

	tt.uploadBadExtension(t, c.ID)
	tt.uploadUnknownCourse(t)
	tt.uploadMissingFile(t, c.ID)
	tt.uploadNeedsAdmin(t, c.ID)

	tt.listNeedsEnrollment(t, c.ID)
	tt.fileNeedsEnrollment(t, vid.ID)

	enroll(t, tt.DB, tt.UserID, c.ID)

	tt.listOrdered(t, c.ID, []string{pdf.ID, vid.ID})
	tt.streamVideoRange(t, vid.ID, videoBytes)
	tt.downloadDocument(t, pdf.ID)
	tt.adminRedirectedFromPlayer(t, vid.ID)
	tt.progressTracking(t, c.ID, locked.ID)
	tt.deleteContent(t, vid.ID)
}

func (tt *contentTest) uploadOK(t *testing.T, courseID, kind, filename string, order int, data []byte) content.Content {
	t.Helper()

	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	fields := map[string]string{
		"course_id":     courseID,
		"title":         fmt.Sprintf("Item %s %d", kind, order),
		"kind":          kind,
		"display_order": fmt.Sprintf("%d", order),
	}

	body, contentType := multipartBody(t, fields, "file", filename, data)

	w := tt.do(t, http.MethodPost, "/contents", body, contentType)
	defer w.Body.Close()

	if w.StatusCode != http.StatusCreated {
		t.Fatalf("can't upload content: status code %s", w.Status)
	}

	var ctn content.Content
	if err := json.NewDecoder(w.Body).Decode(&ctn); err != nil {
		t.Fatalf("cannot unmarshal created content: %v", err)
	}

	if ctn.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), ctn.Size)
	}

	return ctn
}

func (tt *contentTest) uploadBadExtension(t *testing.T, courseID string) {
	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	tests := []struct {
		kind     string
		filename string
	}{
		{"video", "script.sh"},
		{"pdf", "notes.docx"},
		{"slide", "deck.mp4"},
	}

	for _, tc := range tests {
		fields := map[string]string{
			"course_id": courseID,
			"title":     "Upload that must bounce",
			"kind":      tc.kind,
		}

		body, contentType := multipartBody(t, fields, "file", tc.filename, []byte("junk"))
		w := tt.do(t, http.MethodPost, "/contents", body, contentType)
		w.Body.Close()

		if w.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("%s as %s: expected status %d, got %s", tc.filename, tc.kind, http.StatusUnprocessableEntity, w.Status)
		}
	}
}

func (tt *contentTest) uploadUnknownCourse(t *testing.T) {
	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	fields := map[string]string{
		"course_id": "not-a-uuid",
		"title":     "Orphan upload",
		"kind":      "pdf",
	}

	body, contentType := multipartBody(t, fields, "file", "notes.pdf", []byte("junk"))
	w := tt.do(t, http.MethodPost, "/contents", body, contentType)
	w.Body.Close()

	if w.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed course id: expected status %d, got %s", http.StatusBadRequest, w.Status)
	}

	fields["course_id"] = "6fa21bc6-2733-4b39-9cb6-2c6e58feea01"
	body, contentType = multipartBody(t, fields, "file", "notes.pdf", []byte("junk"))
	w = tt.do(t, http.MethodPost, "/contents", body, contentType)
	w.Body.Close()

	if w.StatusCode != http.StatusNotFound {
		t.Errorf("unknown course: expected status %d, got %s", http.StatusNotFound, w.Status)
	}
}

func (tt *contentTest) uploadMissingFile(t *testing.T, courseID string) {
	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	fields := map[string]string{
		"course_id": courseID,
		"title":     "Upload without a file",
		"kind":      "pdf",
	}

	body, contentType := multipartBody(t, fields, "", "", nil)
	w := tt.do(t, http.MethodPost, "/contents", body, contentType)
	w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %s", http.StatusUnprocessableEntity, w.Status)
	}
}

func (tt *contentTest) uploadNeedsAdmin(t *testing.T, courseID string) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	fields := map[string]string{
		"course_id": courseID,
		"title":     "Student upload attempt",
		"kind":      "pdf",
	}

	body, contentType := multipartBody(t, fields, "file", "notes.pdf", []byte("junk"))
	w := tt.do(t, http.MethodPost, "/contents", body, contentType)
	w.Body.Close()

	if w.StatusCode != http.StatusForbidden {
		t.Errorf("expected status %d, got %s", http.StatusForbidden, w.Status)
	}
}

func (tt *contentTest) listNeedsEnrollment(t *testing.T, courseID string) {
	w := tt.do(t, http.MethodGet, "/courses/"+courseID+"/contents", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous list: expected status %d, got %s", http.StatusUnauthorized, w.Status)
	}

	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w = tt.do(t, http.MethodGet, "/courses/"+courseID+"/contents", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusForbidden {
		t.Errorf("unenrolled list: expected status %d, got %s", http.StatusForbidden, w.Status)
	}
}

func (tt *contentTest) fileNeedsEnrollment(t *testing.T, contentID string) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w := tt.do(t, http.MethodGet, "/contents/"+contentID+"/file", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusForbidden {
		t.Errorf("expected status %d, got %s", http.StatusForbidden, w.Status)
	}
}

func (tt *contentTest) listOrdered(t *testing.T, courseID string, expected []string) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w := tt.do(t, http.MethodGet, "/courses/"+courseID+"/contents", nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't list contents: status code %s", w.Status)
	}

	raw, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}

	// Stored paths never leave the server.
	if strings.Contains(string(raw), `"path"`) {
		t.Error("the content listing must not expose file paths")
	}

	var contents []content.Content
	if err := json.Unmarshal(raw, &contents); err != nil {
		t.Fatalf("cannot unmarshal contents: %v", err)
	}

	if len(contents) != len(expected) {
		t.Fatalf("expected %d contents, got %d", len(expected), len(contents))
	}

	for i, id := range expected {
		if contents[i].ID != id {
			t.Errorf("position %d: expected content[%s], got [%s]", i, id, contents[i].ID)
		}
	}
}

func (tt *contentTest) streamVideoRange(t *testing.T, contentID string, data []byte) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w := tt.do(t, http.MethodGet, "/contents/"+contentID+"/file", nil, "")
	got, err := io.ReadAll(w.Body)
	w.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch video: status code %s", w.Status)
	}

	if w.Header.Get("Content-Disposition") != "" {
		t.Error("videos must stream inline, not as attachments")
	}

	if string(got) != string(data) {
		t.Error("the delivered video does not match the upload")
	}

	r, err := http.NewRequest(http.MethodGet, tt.URL+"/contents/"+contentID+"/file", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Range", "bytes=0-3")

	w2, err := tt.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Body.Close()

	if w2.StatusCode != http.StatusPartialContent {
		t.Fatalf("range request: expected status %d, got %s", http.StatusPartialContent, w2.Status)
	}

	part, err := io.ReadAll(w2.Body)
	if err != nil {
		t.Fatal(err)
	}

	if string(part) != string(data[:4]) {
		t.Errorf("expected range body %q, got %q", data[:4], part)
	}

	if cr := w2.Header.Get("Content-Range"); !strings.HasPrefix(cr, "bytes 0-3/") {
		t.Errorf("expected a Content-Range header, got %q", cr)
	}
}

func (tt *contentTest) downloadDocument(t *testing.T, contentID string) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w := tt.do(t, http.MethodGet, "/contents/"+contentID+"/file", nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch document: status code %s", w.Status)
	}

	if cd := w.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("expected an attachment disposition, got %q", cd)
	}
}

func (tt *contentTest) adminRedirectedFromPlayer(t *testing.T, contentID string) {
	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	r, err := http.NewRequest(http.MethodGet, tt.URL+"/contents/"+contentID+"/file", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := tt.noRedirect().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	w.Body.Close()

	if w.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %s", http.StatusSeeOther, w.Status)
	}

	if loc := w.Header.Get("Location"); loc != "/admin/dashboard" {
		t.Errorf("expected a dashboard redirect, got %q", loc)
	}
}

func (tt *contentTest) progressTracking(t *testing.T, enrolledID, lockedID string) {
	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w := tt.doJSON(t, http.MethodPut, "/enrollments/"+enrolledID+"/progress", `{"progress":40}`)
	w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't update progress: status code %s", w.Status)
	}

	w = tt.doJSON(t, http.MethodPut, "/enrollments/"+enrolledID+"/progress", `{"progress":150}`)
	w.Body.Close()

	if w.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("out of range progress: expected status %d, got %s", http.StatusUnprocessableEntity, w.Status)
	}

	w = tt.doJSON(t, http.MethodPut, "/enrollments/"+lockedID+"/progress", `{"progress":10}`)
	w.Body.Close()

	if w.StatusCode != http.StatusForbidden {
		t.Errorf("unenrolled progress: expected status %d, got %s", http.StatusForbidden, w.Status)
	}

	w = tt.do(t, http.MethodGet, "/courses/owned", nil, "")
	defer w.Body.Close()

	var owned []course.CourseOwned
	if err := json.NewDecoder(w.Body).Decode(&owned); err != nil {
		t.Fatalf("cannot unmarshal owned courses: %v", err)
	}

	if len(owned) != 1 || owned[0].Progress != 40 {
		t.Error("expected the owned listing to carry the updated progress")
	}
}

func (tt *contentTest) deleteContent(t *testing.T, contentID string) {
	if err := Login(tt.Server, tt.AdminEmail, tt.AdminPass); err != nil {
		t.Fatal(err)
	}

	w := tt.do(t, http.MethodDelete, "/contents/"+contentID, nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't delete content: status code %s", w.Status)
	}

	Logout(tt.Server)

	if err := Login(tt.Server, tt.UserEmail, tt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(tt.Server)

	w = tt.do(t, http.MethodGet, "/contents/"+contentID+"/file", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusNotFound {
		t.Fatalf("expected the content to be gone, got %s", w.Status)
	}
}
