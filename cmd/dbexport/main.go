// Command dbexport copies every live tuple of one catalog-registered
// table into a modernc.org/sqlite database, so the storage core's
// tuples can be inspected with off-the-shelf SQLite tooling. It is a
// pure consumer: the storage core never imports database/sql or sqlite
// itself, only this one-way export path does.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/chriswood/pagedb/internal/catalog"
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

var (
	flagDir   = flag.String("dir", ".", "database directory (holds catalog.yaml and data files)")
	flagTable = flag.String("table", "", "table to export")
	flagOut   = flag.String("out", "export.sqlite", "output sqlite file")
)

func main() {
	flag.Parse()
	if *flagTable == "" {
		fmt.Fprintln(os.Stderr, "dbexport: -table is required")
		os.Exit(1)
	}

	if err := run(*flagDir, *flagTable, *flagOut); err != nil {
		fmt.Fprintln(os.Stderr, "dbexport:", err)
		os.Exit(1)
	}
}

func run(dir, tableName, out string) error {
	cat, err := catalog.Open(dir)
	if err != nil {
		return err
	}
	t, ok := cat.Table(tableName)
	if !ok {
		return fmt.Errorf("no such table %q", tableName)
	}
	desc, err := t.Descriptor()
	if err != nil {
		return err
	}

	fh, err := pf.OpenFile(cat.DataPath(t))
	if err != nil {
		return err
	}
	defer fh.Close()
	e := recordengine.Open(fh)

	db, err := sql.Open("sqlite", out)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := createTable(db, t); err != nil {
		return err
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, placeholders(len(t.Columns)))
	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	proj := make([]int, len(desc))
	for i := range proj {
		proj[i] = i
	}
	it := e.Scan(desc, 0, recordengine.NoOp, attribute.Value{}, proj)
	count := 0
	for {
		_, values, err := it.Next()
		if err == dberr.RecordEOF {
			break
		}
		if err != nil {
			return err
		}
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = sqlValue(v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
		count++
	}
	fmt.Printf("exported %d rows from %q into %s\n", count, tableName, out)
	return nil
}

func createTable(db *sql.DB, t catalog.TableDef) error {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s %s", c.Name, sqliteType(c.Type))
	}
	if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", t.Name, strings.Join(cols, ", ")))
	return err
}

func sqliteType(t string) string {
	switch t {
	case "int":
		return "INTEGER"
	case "real":
		return "REAL"
	default:
		return "TEXT"
	}
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func sqlValue(v attribute.Value) any {
	switch v.Type {
	case attribute.Int:
		return v.IntVal
	case attribute.Real:
		return v.RealVal
	default:
		return string(v.Bytes)
	}
}
