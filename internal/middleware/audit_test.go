package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rohan-chari/tempo-backend/internal/domain"
)

type auditRow struct {
	subject, action, resourceID, details string
}

type chanAudit struct {
	rows chan auditRow
}

func (a *chanAudit) WriteAudit(subject, action, _, resourceID, details, _, _ string) error {
	a.rows <- auditRow{subject: subject, action: action, resourceID: resourceID, details: details}
	return nil
}

func (a *chanAudit) next(t *testing.T) auditRow {
	t.Helper()
	select {
	case r := <-a.rows:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no audit row written")
		return auditRow{}
	}
}

func TestAuditMiddlewareRecordsSubject(t *testing.T) {
	audit := &chanAudit{rows: make(chan auditRow, 4)}

	app := fiber.New()
	app.Use(AuditMiddleware(audit))
	app.Get("/open", func(c fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/closed", JWTMiddleware(testJWT), func(c fiber.Ctx) error { return c.SendString("ok") })

	if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/open", nil)); err != nil {
		t.Fatal(err)
	}
	row := audit.next(t)
	if row.subject != "anonymous" || row.action != domain.AuditActionHTTPRequest || row.resourceID != "/open" {
		t.Fatalf("row = %+v", row)
	}

	token, _ := GenerateJWT(testUser(), testJWT)
	req := httptest.NewRequest(http.MethodGet, "/closed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, err := app.Test(req); err != nil {
		t.Fatal(err)
	}
	row = audit.next(t)
	if row.subject != "g-7" || row.resourceID != "/closed" {
		t.Fatalf("row = %+v", row)
	}
}
