package reflist

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
)

func seed(t *testing.T, svc *Service, kind Kind, items ...*List) []*List {
	t.Helper()
	created, err := svc.Create(context.Background(), kind, items)
	if err != nil {
		t.Fatalf("seed %s: %v", kind, err)
	}
	return created
}

func TestService_Create(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.Create(context.Background(), KindDrug, []*List{
		{Name: "Formulary", Code: "F1", Kind: KindDiagnosis},
		{Name: "Oncology", Code: "ONC", Description: strPtr("cancer drugs")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 lists, got %d", len(created))
	}
	for _, l := range created {
		if l.ID == uuid.Nil {
			t.Error("expected server-assigned id")
		}
		if l.Kind != KindDrug {
			t.Errorf("expected kind from route, got %s", l.Kind)
		}
		if l.Status != "ACTIVE" {
			t.Errorf("expected default ACTIVE, got %s", l.Status)
		}
	}
}

func TestService_Create_DuplicateInBatch(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.Create(context.Background(), KindDrug, []*List{
		{Name: "Formulary", Code: "F1"},
		{Name: "formulary", Code: "F2"},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.lists) != 0 {
		t.Errorf("expected nothing persisted, got %d rows", len(repo.lists))
	}
}

func TestService_Create_ConflictAcrossRequests(t *testing.T) {
	svc, _ := newTestService()
	seed(t, svc, KindDrug, &List{Name: "Formulary", Code: "F1"})

	_, err := svc.Create(context.Background(), KindDrug, []*List{{Name: "FORMULARY", Code: "F9"}})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_Create_SurroundingWhitespaceIsSameName(t *testing.T) {
	svc, repo := newTestService()
	created := seed(t, svc, KindDiagnosis, &List{Name: "Cardiology ", Code: " CARD"})

	stored := repo.lists[created[0].ID]
	if stored.Name != "Cardiology" || stored.Code != "CARD" {
		t.Errorf("expected trimmed identity values, got %q / %q", stored.Name, stored.Code)
	}

	_, err := svc.Create(context.Background(), KindDiagnosis, []*List{{Name: "cardiology", Code: "C2"}})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for whitespace and case variant, got %v", err)
	}

	_, err = svc.Create(context.Background(), KindDiagnosis, []*List{{Name: "Neurology", Code: "N1"}, {Name: " neurology\t", Code: "N2"}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected in-batch duplicate, got %v", err)
	}
}

func TestService_Create_SameNameOtherKind(t *testing.T) {
	svc, _ := newTestService()
	seed(t, svc, KindDrug, &List{Name: "Formulary", Code: "F1"})

	if _, err := svc.Create(context.Background(), KindDiagnosis, []*List{{Name: "Formulary", Code: "F1"}}); err != nil {
		t.Fatalf("expected names to be unique per kind only, got %v", err)
	}
}

func TestService_Create_ParentMustMatchKind(t *testing.T) {
	svc, _ := newTestService()
	parent := seed(t, svc, KindDiagnosis, &List{Name: "ICD", Code: "ICD"})[0]

	_, err := svc.Create(context.Background(), KindDrug, []*List{{Name: "Child", Code: "C", ParentListID: &parent.ID}})
	if !apperr.Is(err, apperr.KindReferential) {
		t.Fatalf("expected referential error, got %v", err)
	}

	if _, err := svc.Create(context.Background(), KindDiagnosis, []*List{{Name: "Child", Code: "C", ParentListID: &parent.ID}}); err != nil {
		t.Fatalf("expected same-kind parent to be accepted, got %v", err)
	}
}

func TestService_Create_NullEntry(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), KindDrug, []*List{nil})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Get_WrongKind(t *testing.T) {
	svc, _ := newTestService()
	l := seed(t, svc, KindDrug, &List{Name: "Formulary", Code: "F1"})[0]

	if _, err := svc.Get(context.Background(), KindDrug, l.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), KindClinician, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for other kind, got %v", err)
	}
	if _, err := svc.Get(context.Background(), KindDrug, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	svc, _ := newTestService()
	lists := seed(t, svc, KindDrug, &List{Name: "A", Code: "A"}, &List{Name: "B", Code: "B"})

	updated, err := svc.Update(context.Background(), KindDrug, lists[0].ID, &List{Name: "a", Code: "A2"})
	if err != nil {
		t.Fatalf("expected update keeping own name to succeed, got %v", err)
	}
	if updated.Code != "A2" {
		t.Errorf("expected code A2, got %s", updated.Code)
	}

	updated, err = svc.Update(context.Background(), KindDrug, lists[0].ID, &List{Name: "  a  ", Code: "A2 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "a" || updated.Code != "A2" {
		t.Errorf("expected trimmed update, got %q / %q", updated.Name, updated.Code)
	}

	_, err = svc.Update(context.Background(), KindDrug, lists[0].ID, &List{Name: "b", Code: "A3"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict with other row, got %v", err)
	}

	_, err = svc.Update(context.Background(), KindDrug, lists[0].ID, &List{Name: "A", Code: "A", ParentListID: &lists[0].ID})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for own parent, got %v", err)
	}

	_, err = svc.Update(context.Background(), KindDiagnosis, lists[0].ID, &List{Name: "A", Code: "A"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found through other kind, got %v", err)
	}
}

func TestService_SetStatus(t *testing.T) {
	svc, repo := newTestService()
	l := seed(t, svc, KindDrug, &List{Name: "Formulary", Code: "F1"})[0]

	_, err := svc.SetStatus(context.Background(), KindDrug, l.ID, lifecycle.Activate)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected activate on ACTIVE to fail, got %v", err)
	}
	if repo.lists[l.ID].Status != "ACTIVE" {
		t.Errorf("state must be unchanged, got %s", repo.lists[l.ID].Status)
	}

	got, err := svc.SetStatus(context.Background(), KindDrug, l.ID, lifecycle.Deactivate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != "INACTIVE" {
		t.Errorf("expected INACTIVE, got %s", got.Status)
	}

	_, err = svc.SetStatus(context.Background(), KindDiagnosis, l.ID, lifecycle.Activate)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found through other kind, got %v", err)
	}
	if repo.lists[l.ID].Status != "INACTIVE" {
		t.Errorf("other-kind transition must not touch the row")
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo := newTestService()
	lists := seed(t, svc, KindDrug, &List{Name: "Parent", Code: "P"})
	child := seed(t, svc, KindDrug, &List{Name: "Child", Code: "C", ParentListID: &lists[0].ID})[0]

	if err := svc.Delete(context.Background(), KindDrug, lists[0].ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict while child exists, got %v", err)
	}

	repo.dependents[child.ID] = true
	if err := svc.Delete(context.Background(), KindDrug, child.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict while members exist, got %v", err)
	}
	repo.dependents[child.ID] = false

	if err := svc.Delete(context.Background(), KindDrug, child.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), KindDrug, child.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService()
	seed(t, svc, KindDrug, &List{Name: "A", Code: "A"}, &List{Name: "B", Code: "B"}, &List{Name: "C", Code: "C"})
	seed(t, svc, KindDiagnosis, &List{Name: "D", Code: "D"})

	items, total, err := svc.List(context.Background(), Filter{Kind: KindDrug}, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("expected 2 of 3, got %d of %d", len(items), total)
	}

	if _, _, err := svc.List(context.Background(), Filter{Kind: KindDrug, Status: "PENDING"}, 10, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}
