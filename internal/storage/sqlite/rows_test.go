// ABOUTME: Tests for row storage
// ABOUTME: Verifies insertion order, JSON payload round-trips and parent cascades
package sqlite

import (
	"context"
	"testing"

	"github.com/harper/mediaindex/internal/models"
)

func TestRows_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()
	_ = s.Catalog.Create(ctx, newTestTable("demo.people"))

	alice := models.NewRow("row_alice")
	alice.Values["name"] = "Alice"
	alice.Values["age"] = int64(30)
	bob := models.NewRow("row_bob")
	bob.Values["name"] = "Bob"
	bob.Values["age"] = int64(25)
	bob.SetError("age", "upstream failed")

	for _, r := range []*models.Row{alice, bob} {
		if err := s.Rows.Insert(ctx, "demo.people", r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	if alice.Seq == 0 || bob.Seq <= alice.Seq {
		t.Errorf("seq not increasing: alice=%d bob=%d", alice.Seq, bob.Seq)
	}

	rows, err := s.Rows.List(ctx, "demo.people")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "row_alice" || rows[1].ID != "row_bob" {
		t.Fatalf("List() = %+v", rows)
	}
	if rows[0].Values["name"] != "Alice" || rows[0].Values["age"] != float64(30) {
		t.Errorf("alice values = %v", rows[0].Values)
	}
	if rows[1].Errors["age"] != "upstream failed" {
		t.Errorf("bob errors = %v", rows[1].Errors)
	}

	n, _ := s.Rows.Count(ctx, "demo.people")
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestRows_Update(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()
	_ = s.Catalog.Create(ctx, newTestTable("demo.people"))

	row := models.NewRow("row_1")
	row.Values["name"] = "Alice"
	_ = s.Rows.Insert(ctx, "demo.people", row)

	row.Values["age"] = int64(31)
	if err := s.Rows.Update(ctx, row); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := s.Rows.Get(ctx, "row_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Values["age"] != float64(31) || got.Seq != row.Seq {
		t.Errorf("Get() = %+v", got)
	}

	if err := s.Rows.Update(ctx, models.NewRow("ghost")); !models.IsNotFound(err) {
		t.Errorf("Update(missing) error = %v, want not found", err)
	}
	if _, err := s.Rows.Get(ctx, "ghost"); !models.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want not found", err)
	}
}

func TestRows_ParentCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()
	_ = s.Catalog.Create(ctx, newTestTable("demo.base"))
	_ = s.Catalog.Create(ctx, &models.TableInfo{Name: "demo.view", Kind: models.KindView, Base: "demo.base"})

	parent := models.NewRow("p1")
	_ = s.Rows.Insert(ctx, "demo.base", parent)
	for _, id := range []string{"c1", "c2"} {
		child := models.NewRow(id)
		child.ParentID = "p1"
		if err := s.Rows.Insert(ctx, "demo.view", child); err != nil {
			t.Fatalf("Insert(child) error = %v", err)
		}
	}

	children, err := s.Rows.List(ctx, "demo.view")
	if err != nil || len(children) != 2 || children[0].ParentID != "p1" {
		t.Fatalf("List() = %+v, %v", children, err)
	}

	if _, err := db.Conn().ExecContext(ctx, "DELETE FROM table_rows WHERE id = ?", "p1"); err != nil {
		t.Fatalf("delete parent error = %v", err)
	}
	n, _ := s.Rows.Count(ctx, "demo.view")
	if n != 0 {
		t.Errorf("children remaining after parent delete = %d, want 0", n)
	}
}

func TestRows_GetMany(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()
	_ = s.Catalog.Create(ctx, newTestTable("demo.people"))
	for _, id := range []string{"r1", "r2", "r3"} {
		row := models.NewRow(id)
		row.Values["name"] = id
		_ = s.Rows.Insert(ctx, "demo.people", row)
	}

	got, err := s.Rows.GetMany(ctx, []string{"r3", "r1"})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 || got["r1"].Values["name"] != "r1" || got["r3"].Seq <= got["r1"].Seq {
		t.Errorf("GetMany() = %+v", got)
	}

	empty, err := s.Rows.GetMany(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetMany(nil) = %v, %v", empty, err)
	}

	if _, err := s.Rows.GetMany(ctx, []string{"r1", "ghost"}); !models.IsNotFound(err) {
		t.Errorf("GetMany(missing) error = %v, want not found", err)
	}
}

func TestRows_DropTableCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := db.Stores()
	_ = s.Catalog.Create(ctx, newTestTable("demo.people"))
	_ = s.Rows.Insert(ctx, "demo.people", models.NewRow("r1"))

	if err := s.Catalog.Delete(ctx, "demo.people"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Rows.Get(ctx, "r1"); !models.IsNotFound(err) {
		t.Errorf("row should be gone after dropping its table, got %v", err)
	}
}
