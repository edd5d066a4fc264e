package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"archmarket.io/internal/audit"
	"archmarket.io/internal/contact"
	"archmarket.io/internal/earnings"
	"archmarket.io/internal/license"
	"archmarket.io/internal/workflow"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var ts = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func TestCreateRequest(t *testing.T) {
	s, mock := newMock(t)
	r := workflow.ModificationRequest{
		ID: "mr-1", DesignID: "d-1", BuyerID: "b-1", ArchitectID: "a-1", LicenseType: license.TypeStandard,
		Description: "Add a porch", ScopeTags: []string{"exterior"}, Status: workflow.StatusRequested,
		CreatedAt: ts, UpdatedAt: ts,
	}
	mock.ExpectExec("insert into modification_requests").
		WithArgs("mr-1", "d-1", "b-1", "a-1", "STANDARD", "Add a porch", []byte(`["exterior"]`),
			"REQUESTED", int64(0), 0, 0, "", ts, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.Create(context.Background(), r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectExec("insert into modification_requests").WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := s.Create(context.Background(), r); !errors.Is(err, workflow.ErrDesignNotFound) {
		t.Fatalf("expected ErrDesignNotFound, got %v", err)
	}
}

func TestGetRequest(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "design_id", "buyer_id", "architect_id", "license_type", "description", "scope_tags",
		"status", "proposed_price", "delivery_time_days", "revisions_included", "architect_note", "created_at", "updated_at"}
	mock.ExpectQuery("select .* from modification_requests where id=\\$1").WithArgs("mr-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("mr-1", "d-1", "b-1", "a-1", "EXCLUSIVE", "desc", []byte(`["a","b"]`),
			"PRICED", int64(2500), 7, 1, "note", ts, ts))
	r, err := s.Get(context.Background(), "mr-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != workflow.StatusPriced || r.LicenseType != license.TypeExclusive || len(r.ScopeTags) != 2 || r.ProposedPrice != 2500 {
		t.Fatalf("unexpected request: %+v", r)
	}

	mock.ExpectQuery("select .* from modification_requests").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	s, mock := newMock(t)
	next := workflow.ModificationRequest{ID: "mr-1", Status: workflow.StatusPriced, ProposedPrice: 900, DeliveryTimeDays: 4, UpdatedAt: ts}

	mock.ExpectExec("update modification_requests .* where id=\\$1 and status=\\$2").
		WithArgs("mr-1", "REQUESTED", "PRICED", int64(900), 4, 0, "", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.CompareAndSwap(context.Background(), workflow.StatusRequested, next); err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}

	mock.ExpectExec("update modification_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("mr-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	if err := s.CompareAndSwap(context.Background(), workflow.StatusRequested, next); !errors.Is(err, workflow.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}

	mock.ExpectExec("update modification_requests").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("mr-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	if err := s.CompareAndSwap(context.Background(), workflow.StatusRequested, next); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveLicense(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select type, active, exclusive_paid").WithArgs("d-1", "b-1").
		WillReturnRows(sqlmock.NewRows([]string{"type", "active", "exclusive_paid"}).AddRow("EXCLUSIVE", true, true))
	l, err := s.ActiveLicense(context.Background(), "d-1", "b-1")
	if err != nil {
		t.Fatalf("ActiveLicense: %v", err)
	}
	if l.Type != license.TypeExclusive || !l.ExclusivePaid || l.DesignID != "d-1" {
		t.Fatalf("unexpected license: %+v", l)
	}

	mock.ExpectQuery("select type, active, exclusive_paid").WithArgs("d-1", "b-2").
		WillReturnRows(sqlmock.NewRows([]string{"type", "active", "exclusive_paid"}).AddRow("PLATINUM", true, true))
	l, err = s.ActiveLicense(context.Background(), "d-1", "b-2")
	if err != nil {
		t.Fatalf("ActiveLicense: %v", err)
	}
	if l.Type != "" {
		t.Fatalf("unknown license type should grant nothing, got %q", l.Type)
	}

	mock.ExpectQuery("select type").WillReturnError(sql.ErrNoRows)
	if _, err := s.ActiveLicense(context.Background(), "d-2", "b-1"); !errors.Is(err, license.ErrNotFound) {
		t.Fatalf("expected license.ErrNotFound, got %v", err)
	}
}

func TestArchitectForDesign(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select architect_id from designs").WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows([]string{"architect_id"}).AddRow("a-1"))
	id, err := s.ArchitectForDesign(context.Background(), "d-1")
	if err != nil || id != "a-1" {
		t.Fatalf("ArchitectForDesign: %q, %v", id, err)
	}
	mock.ExpectQuery("select architect_id from designs").WithArgs("d-x").WillReturnError(sql.ErrNoRows)
	if _, err := s.ArchitectForDesign(context.Background(), "d-x"); !errors.Is(err, workflow.ErrDesignNotFound) {
		t.Fatalf("expected ErrDesignNotFound, got %v", err)
	}
}

func unlockFixture() (contact.UnlockEvent, audit.Entry) {
	evt := contact.UnlockEvent{ID: "u-1", DesignID: "d-1", BuyerID: "b-1", ArchitectID: "a-1", Reason: contact.ReasonExclusivePurchase, CreatedAt: ts}
	entry := audit.Entry{ID: "au-1", ActorID: "b-1", Action: contact.AuditActionUnlocked, TargetID: "d-1",
		Metadata: map[string]string{"unlock_id": "u-1"}, OccurredAt: ts}
	return evt, entry
}

func TestCreateUnlockWritesAuditInSameTx(t *testing.T) {
	s, mock := newMock(t)
	evt, entry := unlockFixture()
	ctx := audit.WithRequestID(context.Background(), "req-9")

	mock.ExpectBegin()
	mock.ExpectExec("insert into contact_unlocks").
		WithArgs("u-1", "d-1", "b-1", "a-1", "EXCLUSIVE_PURCHASE", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_log").
		WithArgs("au-1", "b-1", "contact.unlocked", "d-1", []byte(`{"unlock_id":"u-1"}`), "req-9", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	if err := s.CreateUnlock(ctx, evt, entry); err != nil {
		t.Fatalf("CreateUnlock: %v", err)
	}
}

func TestCreateUnlockRollsBackWhenAuditFails(t *testing.T) {
	s, mock := newMock(t)
	evt, entry := unlockFixture()

	mock.ExpectBegin()
	mock.ExpectExec("insert into contact_unlocks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_log").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	if err := s.CreateUnlock(context.Background(), evt, entry); err == nil {
		t.Fatal("expected error when the audit insert fails")
	}

	// Nothing was committed, so a retry inserts both rows instead of hitting the unique key.
	mock.ExpectBegin()
	mock.ExpectExec("insert into contact_unlocks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_log").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	if err := s.CreateUnlock(context.Background(), evt, entry); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCreateUnlockDuplicate(t *testing.T) {
	s, mock := newMock(t)
	evt, entry := unlockFixture()
	mock.ExpectBegin()
	mock.ExpectExec("insert into contact_unlocks").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()
	if err := s.CreateUnlock(context.Background(), evt, entry); !errors.Is(err, contact.ErrAlreadyUnlocked) {
		t.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
	}
}

func TestRecordAudit(t *testing.T) {
	s, mock := newMock(t)
	ctx := audit.WithRequestID(context.Background(), "req-7")
	mock.ExpectExec("insert into audit_log").
		WithArgs("au-1", "b-1", "contact.unlocked", "d-1", []byte(`{"reason":"EXCLUSIVE_PURCHASE"}`), "req-7", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := s.Record(ctx, audit.Entry{
		ID: "au-1", ActorID: "b-1", Action: "contact.unlocked", TargetID: "d-1",
		Metadata: map[string]string{"reason": "EXCLUSIVE_PURCHASE"}, OccurredAt: ts,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, audit.Entry{ActorID: "b-1", OccurredAt: ts}); err == nil {
		t.Fatal("expected validation error for entry without action")
	}
}

func TestPendingEarningForRequest(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from earnings").WithArgs("mr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "architect_id", "amount", "status", "created_at"}).
			AddRow("e-1", "mr-1", "a-1", int64(9000), "PENDING", ts))
	e, err := s.PendingEarningForRequest(context.Background(), "mr-1")
	if err != nil {
		t.Fatalf("PendingEarningForRequest: %v", err)
	}
	if e.Status != earnings.StatusPending || e.Amount != 9000 {
		t.Fatalf("unexpected earning: %+v", e)
	}
	mock.ExpectQuery("from earnings").WithArgs("mr-2").WillReturnError(sql.ErrNoRows)
	if _, err := s.PendingEarningForRequest(context.Background(), "mr-2"); !errors.Is(err, earnings.ErrNotFound) {
		t.Fatalf("expected earnings.ErrNotFound, got %v", err)
	}
}
