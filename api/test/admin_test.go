package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/swasthik/sarathi/core/admin"
	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/payment"
	"github.com/swasthik/sarathi/core/user"
)

type adminTest struct {
	*TestEnv
}

func TestAdmin(t *testing.T) {
	env, err := NewTestEnv(t, "admin_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	at := &adminTest{env}
	ct := &courseTest{TestEnv: env}
	pt := &paymentTest{env}

	at.dashboardNeedsAdmin(t)

	sold := ct.createCourseOK(t)
	extra := ct.createCourseOK(t)
	untouched := ct.createCourseOK(t)

	pt.esewaBuyNow(t, sold)
	enroll(t, at.DB, at.UserID, extra.ID)

	priyaID := at.signupStudent(t, "priya", "priya@test.dev")
	enroll(t, at.DB, priyaID, sold.ID)

	at.dashboard(t, sold)
	at.analytics(t, sold, untouched)
	at.listStudents(t)
	at.showStudent(t, sold)
	at.showStudentUnknown(t)
}

func (at *adminTest) dashboardNeedsAdmin(t *testing.T) {
	w := at.do(t, http.MethodGet, "/admin/dashboard", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous dashboard: expected status %d, got %s", http.StatusUnauthorized, w.Status)
	}

	if err := Login(at.Server, at.UserEmail, at.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	for _, path := range []string{"/admin/dashboard", "/admin/analytics", "/admin/students"} {
		w := at.do(t, http.MethodGet, path, nil, "")
		w.Body.Close()

		if w.StatusCode != http.StatusForbidden {
			t.Errorf("student on %s: expected status %d, got %s", path, http.StatusForbidden, w.Status)
		}
	}
}

// signupStudent registers a second student through the public API.
func (at *adminTest) signupStudent(t *testing.T, username, email string) string {
	t.Helper()

	in := fmt.Sprintf(`{"username":%q,"email":%q,"password":"secret123","passwordConfirm":"secret123"}`, username, email)
	w := at.doJSON(t, http.MethodPost, "/auth/signup", in)
	defer w.Body.Close()

	if w.StatusCode != http.StatusCreated {
		t.Fatalf("can't sign up %s: status code %s", username, w.Status)
	}

	var usr user.User
	if err := json.NewDecoder(w.Body).Decode(&usr); err != nil {
		t.Fatalf("cannot unmarshal created user: %v", err)
	}

	// Signup opens a session right away.
	if err := Logout(at.Server); err != nil {
		t.Fatal(err)
	}

	return usr.ID
}

func (at *adminTest) dashboard(t *testing.T, sold course.Course) {
	if err := Login(at.Server, at.AdminEmail, at.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	w := at.do(t, http.MethodGet, "/admin/dashboard", nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch dashboard: status code %s", w.Status)
	}

	var dash admin.Dashboard
	if err := json.NewDecoder(w.Body).Decode(&dash); err != nil {
		t.Fatalf("cannot unmarshal dashboard: %v", err)
	}

	if dash.Totals.Students != 2 {
		t.Errorf("expected 2 students, got %d", dash.Totals.Students)
	}
	if dash.Totals.Courses != 3 {
		t.Errorf("expected 3 courses, got %d", dash.Totals.Courses)
	}
	if dash.Totals.Enrollments != 3 {
		t.Errorf("expected 3 enrollments, got %d", dash.Totals.Enrollments)
	}
	if dash.Totals.Revenue != sold.Price {
		t.Errorf("expected revenue %d, got %d", sold.Price, dash.Totals.Revenue)
	}

	if len(dash.RecentEnrollments) != 3 {
		t.Fatalf("expected 3 recent enrollments, got %d", len(dash.RecentEnrollments))
	}
	for _, re := range dash.RecentEnrollments {
		if re.Username == "" || re.Title == "" {
			t.Error("recent enrollments carry the student and the course")
		}
	}

	// Courses nobody enrolled in never chart.
	if len(dash.TopCourses) != 2 {
		t.Fatalf("expected 2 top courses, got %d", len(dash.TopCourses))
	}
	if dash.TopCourses[0].CourseID != sold.ID || dash.TopCourses[0].Enrollments != 2 {
		t.Errorf("expected course[%s] on top with 2 enrollments, got [%s] with %d",
			sold.ID, dash.TopCourses[0].CourseID, dash.TopCourses[0].Enrollments)
	}
}

func (at *adminTest) analytics(t *testing.T, sold, untouched course.Course) {
	if err := Login(at.Server, at.AdminEmail, at.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	w := at.do(t, http.MethodGet, "/admin/analytics", nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch analytics: status code %s", w.Status)
	}

	var an admin.Analytics
	if err := json.NewDecoder(w.Body).Decode(&an); err != nil {
		t.Fatalf("cannot unmarshal analytics: %v", err)
	}

	if len(an.Courses) != 3 {
		t.Fatalf("expected stats for 3 courses, got %d", len(an.Courses))
	}

	lead := an.Courses[0]
	if lead.CourseID != sold.ID || lead.Enrollments != 2 || lead.Revenue != sold.Price {
		t.Errorf("expected course[%s] leading with 2 enrollments and revenue %d, got [%s] %d/%d",
			sold.ID, sold.Price, lead.CourseID, lead.Enrollments, lead.Revenue)
	}

	var idle bool
	for _, cs := range an.Courses {
		if cs.CourseID == untouched.ID && cs.Enrollments == 0 && cs.Revenue == 0 {
			idle = true
		}
	}
	if !idle {
		t.Error("expected the untouched course to chart with zero activity")
	}

	if len(an.Categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(an.Categories))
	}
	cat := an.Categories[0]
	if cat.Category != "general" || cat.Courses != 3 || cat.Enrollments != 3 {
		t.Errorf("expected general with 3 courses and 3 enrollments, got %s %d/%d",
			cat.Category, cat.Courses, cat.Enrollments)
	}

	if len(an.Payments) != 1 {
		t.Fatalf("expected 1 recent payment, got %d", len(an.Payments))
	}
	p := an.Payments[0]
	if p.Username != "student" || p.Amount != sold.Price ||
		p.Provider != payment.ProviderEsewa || p.Status != payment.StatusSuccess {
		t.Errorf("unexpected recent payment: %+v", p)
	}
}

func (at *adminTest) listStudents(t *testing.T) {
	if err := Login(at.Server, at.AdminEmail, at.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	w := at.do(t, http.MethodGet, "/admin/students", nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't list students: status code %s", w.Status)
	}

	var students []admin.Student
	if err := json.NewDecoder(w.Body).Decode(&students); err != nil {
		t.Fatalf("cannot unmarshal students: %v", err)
	}

	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}

	byName := map[string]admin.Student{}
	for _, s := range students {
		byName[s.Username] = s
	}

	if _, ok := byName["admin"]; ok {
		t.Error("staff accounts never appear in the student list")
	}

	if s := byName["student"]; s.Enrollments != 2 {
		t.Errorf("expected student with 2 enrollments, got %d", s.Enrollments)
	}
	if s := byName["priya"]; s.Enrollments != 1 {
		t.Errorf("expected priya with 1 enrollment, got %d", s.Enrollments)
	}
}

func (at *adminTest) showStudent(t *testing.T, sold course.Course) {
	if err := Login(at.Server, at.AdminEmail, at.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	w := at.do(t, http.MethodGet, "/admin/students/"+at.UserID, nil, "")
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't show student: status code %s", w.Status)
	}

	var det admin.StudentDetail
	if err := json.NewDecoder(w.Body).Decode(&det); err != nil {
		t.Fatalf("cannot unmarshal student detail: %v", err)
	}

	if det.Email != at.UserEmail {
		t.Errorf("expected student %s, got %s", at.UserEmail, det.Email)
	}

	if len(det.Courses) != 2 {
		t.Errorf("expected 2 owned courses, got %d", len(det.Courses))
	}

	if len(det.Payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(det.Payments))
	}
	if det.Payments[0].Title != sold.Title {
		t.Errorf("expected a payment for %q, got %q", sold.Title, det.Payments[0].Title)
	}
}

func (at *adminTest) showStudentUnknown(t *testing.T) {
	if err := Login(at.Server, at.AdminEmail, at.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(at.Server)

	admUsr, err := user.FetchByEmail(context.Background(), at.DB, at.AdminEmail)
	if err != nil {
		t.Fatal(err)
	}

	// The admin account is not a student.
	w := at.do(t, http.MethodGet, "/admin/students/"+admUsr.ID, nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusNotFound {
		t.Errorf("staff id: expected status %d, got %s", http.StatusNotFound, w.Status)
	}

	w = at.do(t, http.MethodGet, "/admin/students/6fa21bc6-2733-4b39-9cb6-2c6e58feea01", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: expected status %d, got %s", http.StatusNotFound, w.Status)
	}

	w = at.do(t, http.MethodGet, "/admin/students/not-a-uuid", nil, "")
	w.Body.Close()

	if w.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed id: expected status %d, got %s", http.StatusBadRequest, w.Status)
	}
}
