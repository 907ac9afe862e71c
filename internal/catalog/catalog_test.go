package catalog

import (
	"testing"

	"github.com/chriswood/pagedb/internal/storage/attribute"
)

func TestCreateTablePersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cols := []ColumnDef{{Name: "id", Type: "int"}, {Name: "name", Type: "varchar"}}
	if _, err := c.CreateTable("people", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tbl, ok := reopened.Table("people")
	if !ok {
		t.Fatal("expected table people to survive reopen")
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0].Name != "id" {
		t.Fatalf("unexpected columns: %+v", tbl.Columns)
	}
}

func TestCreateTableDuplicateNameRejected(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cols := []ColumnDef{{Name: "id", Type: "int"}}
	if _, err := c.CreateTable("people", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateTable("people", cols); err == nil {
		t.Fatal("expected an error creating a duplicate table")
	}
}

func TestCreateIndexAndDescriptor(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cols := []ColumnDef{{Name: "id", Type: "int"}, {Name: "balance", Type: "real"}}
	if _, err := c.CreateTable("accounts", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	ix, err := c.CreateIndex("accounts", "idx_id", "id")
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if ix.File == "" {
		t.Fatal("expected a non-empty index file name")
	}

	tbl, _ := c.Table("accounts")
	desc, err := tbl.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if len(desc) != 2 || desc[0] != attribute.Int || desc[1] != attribute.Real {
		t.Fatalf("unexpected descriptor: %v", desc)
	}
}

func TestCreateIndexUnknownColumnRejected(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.CreateTable("accounts", []ColumnDef{{Name: "id", Type: "int"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateIndex("accounts", "bad", "nope"); err == nil {
		t.Fatal("expected an error indexing an unknown column")
	}
}

func TestDropTableRemovesRegistration(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.CreateTable("people", []ColumnDef{{Name: "id", Type: "int"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := c.DropTable("people"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := c.Table("people"); ok {
		t.Fatal("expected table to be gone after DropTable")
	}
}

func TestDropIndexRemovesRegistrationOnly(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.CreateTable("people", []ColumnDef{{Name: "id", Type: "int"}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateIndex("people", "idx_id", "id"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := c.DropIndex("people", "idx_id"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	tbl, _ := c.Table("people")
	if len(tbl.Indexes) != 0 {
		t.Fatalf("expected no indexes left, got %+v", tbl.Indexes)
	}
}
