// Package catalog is a thin relation directory mapping table names to
// their backing record-engine and B+ tree index files. It is
// explicitly not a transactional system catalog: the CLI and the
// maintenance scheduler use it purely to look up which files to open.
// The directory is persisted as a small YAML document per database
// directory, loaded with gopkg.in/yaml.v3.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/btree"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// ColumnDef names and types one attribute of a table.
type ColumnDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "int", "real", "varchar"
}

// IndexDef describes one B+ tree index over a table column.
type IndexDef struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	Column string `yaml:"column"`
}

// TableDef is one registered table: its backing data file, its schema,
// and any indexes built over it.
type TableDef struct {
	Name    string      `yaml:"name"`
	File    string      `yaml:"file"`
	Columns []ColumnDef `yaml:"columns"`
	Indexes []IndexDef  `yaml:"indexes"`
}

func (t TableDef) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Descriptor converts a table's column types into the shape
// recordengine.EncodeRecord/DecodeTuple expect.
func (t TableDef) Descriptor() (recordengine.Descriptor, error) {
	out := make(recordengine.Descriptor, len(t.Columns))
	for i, c := range t.Columns {
		typ, err := ParseType(c.Type)
		if err != nil {
			return nil, err
		}
		out[i] = typ
	}
	return out, nil
}

// ParseType maps a YAML-friendly type name to an attribute.Type.
func ParseType(s string) (attribute.Type, error) {
	switch s {
	case "int":
		return attribute.Int, nil
	case "real":
		return attribute.Real, nil
	case "varchar":
		return attribute.VarChar, nil
	default:
		return 0, fmt.Errorf("catalog: unknown column type %q", s)
	}
}

// TypeName is the inverse of ParseType, used when writing new entries.
func TypeName(t attribute.Type) string {
	switch t {
	case attribute.Int:
		return "int"
	case attribute.Real:
		return "real"
	default:
		return "varchar"
	}
}

type document struct {
	Tables []TableDef `yaml:"tables"`
}

// Catalog is one open directory of table/index definitions, backed by a
// YAML file on disk. It is not safe for concurrent use across processes;
// within a process, a Catalog serializes its own mutations.
type Catalog struct {
	dir  string
	path string
	mu   sync.Mutex
	doc  document
}

// Open loads (or initializes) the catalog document at dir/catalog.yaml.
func Open(dir string) (*Catalog, error) {
	path := filepath.Join(dir, "catalog.yaml")
	c := &Catalog{dir: dir, path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &c.doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) save() error {
	raw, err := yaml.Marshal(c.doc)
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", c.path, err)
	}
	return nil
}

// Table looks up a registered table by name.
func (c *Catalog) Table(name string) (TableDef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.doc.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDef{}, false
}

// Tables returns every registered table definition.
func (c *Catalog) Tables() []TableDef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TableDef, len(c.doc.Tables))
	copy(out, c.doc.Tables)
	return out
}

// CreateTable registers a new table, minting a uuid-suffixed data file
// name so repeated creations across process runs never collide on disk,
// and creates the backing paged file via pf.CreateFile.
func (c *Catalog) CreateTable(name string, columns []ColumnDef) (TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.doc.Tables {
		if t.Name == name {
			return TableDef{}, fmt.Errorf("catalog: table %q already exists", name)
		}
	}
	file := fmt.Sprintf("%s-%s.tbl", name, uuid.New().String())
	if err := pf.CreateFile(filepath.Join(c.dir, file)); err != nil {
		return TableDef{}, err
	}
	t := TableDef{Name: name, File: file, Columns: columns}
	c.doc.Tables = append(c.doc.Tables, t)
	if err := c.save(); err != nil {
		return TableDef{}, err
	}
	return t, nil
}

// DropTable unregisters a table and removes its backing data file. Any
// indexes previously registered over it are dropped too.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.doc.Tables {
		if t.Name != name {
			continue
		}
		for _, ix := range t.Indexes {
			if err := btree.DestroyFile(filepath.Join(c.dir, ix.File)); err != nil {
				return err
			}
		}
		if err := pf.DestroyFile(filepath.Join(c.dir, t.File)); err != nil {
			return err
		}
		c.doc.Tables = append(c.doc.Tables[:i], c.doc.Tables[i+1:]...)
		return c.save()
	}
	return fmt.Errorf("catalog: table %q not found", name)
}

// CreateIndex registers and creates a B+ tree index over one column of
// an existing table.
func (c *Catalog) CreateIndex(table, indexName, column string) (IndexDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.doc.Tables {
		if t.Name != table {
			continue
		}
		ci := t.columnIndex(column)
		if ci < 0 {
			return IndexDef{}, fmt.Errorf("catalog: table %q has no column %q", table, column)
		}
		keyType, err := ParseType(t.Columns[ci].Type)
		if err != nil {
			return IndexDef{}, err
		}
		file := fmt.Sprintf("%s-%s.ix", indexName, uuid.New().String())
		if err := btree.CreateFile(filepath.Join(c.dir, file), keyType); err != nil {
			return IndexDef{}, err
		}
		ix := IndexDef{Name: indexName, File: file, Column: column}
		c.doc.Tables[i].Indexes = append(c.doc.Tables[i].Indexes, ix)
		if err := c.save(); err != nil {
			return IndexDef{}, err
		}
		return ix, nil
	}
	return IndexDef{}, fmt.Errorf("catalog: table %q not found", table)
}

// DropIndex unregisters and removes an index's backing file.
func (c *Catalog) DropIndex(table, indexName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ti, t := range c.doc.Tables {
		if t.Name != table {
			continue
		}
		for ii, ix := range t.Indexes {
			if ix.Name != indexName {
				continue
			}
			if err := btree.DestroyFile(filepath.Join(c.dir, ix.File)); err != nil {
				return err
			}
			c.doc.Tables[ti].Indexes = append(t.Indexes[:ii], t.Indexes[ii+1:]...)
			return c.save()
		}
		return fmt.Errorf("catalog: table %q has no index %q", table, indexName)
	}
	return fmt.Errorf("catalog: table %q not found", table)
}

// DataPath returns the full path to a table's backing data file.
func (c *Catalog) DataPath(t TableDef) string { return filepath.Join(c.dir, t.File) }

// IndexPath returns the full path to an index's backing file.
func (c *Catalog) IndexPath(ix IndexDef) string { return filepath.Join(c.dir, ix.File) }
