// Command dbshell is a line-oriented shell over the storage core: DDL
// (create/drop table, create/drop index), DML (insert/select/delete),
// and a print command reporting per-freespace-class page occupancy.
// It never imports SQL; every command maps directly onto a catalog or
// record-engine/B+ tree operation.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chriswood/pagedb/internal/catalog"
	"github.com/chriswood/pagedb/internal/storage/attribute"
	"github.com/chriswood/pagedb/internal/storage/dberr"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

var flagDir = flag.String("dir", ".", "database directory (holds catalog.yaml and data/index files)")

func main() {
	flag.Parse()

	cat, err := catalog.Open(*flagDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}

	sh := &shell{dir: *flagDir, cat: cat}
	sh.run()
}

type shell struct {
	dir string
	cat *catalog.Catalog
}

func (sh *shell) run() {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}
	if interactive {
		fmt.Println("dbshell. Type .help for commands, quit to exit.")
	}

	for {
		if interactive {
			fmt.Print("db> ")
		}
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		if err := sh.dispatch(line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func (sh *shell) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	switch cmd {
	case ".help":
		printHelp()
		return nil
	case ".tables":
		for _, t := range sh.cat.Tables() {
			fmt.Println(t.Name)
		}
		return nil
	case "create":
		if len(fields) < 2 {
			return fmt.Errorf("usage: create table|index ...")
		}
		switch fields[1] {
		case "table":
			return sh.createTable(fields[2:])
		case "index":
			return sh.createIndex(fields[2:])
		}
		return fmt.Errorf("create: unknown object %q", fields[1])
	case "drop":
		if len(fields) < 2 {
			return fmt.Errorf("usage: drop table|index ...")
		}
		switch fields[1] {
		case "table":
			if len(fields) < 3 {
				return fmt.Errorf("usage: drop table <name>")
			}
			return sh.cat.DropTable(fields[2])
		case "index":
			if len(fields) < 4 {
				return fmt.Errorf("usage: drop index <table> <name>")
			}
			return sh.cat.DropIndex(fields[2], fields[3])
		}
		return fmt.Errorf("drop: unknown object %q", fields[1])
	case "insert":
		return sh.insert(fields[1:])
	case "update":
		return sh.update(fields[1:])
	case "select":
		return sh.selectAll(fields[1:])
	case "delete":
		return sh.deleteRID(fields[1:])
	case "print":
		if len(fields) < 2 {
			return fmt.Errorf("usage: print <file>")
		}
		return sh.printFreespace(fields[1])
	default:
		return fmt.Errorf("unrecognized command %q (try .help)", cmd)
	}
}

func printHelp() {
	fmt.Println(`commands:
  create table <name> <col>:<type>[,<col>:<type>...]   types: int, real, varchar
  drop table <name>
  create index <name> on <table>(<column>)
  drop index <table> <name>
  insert <table> <v1>,<v2>,...
  update <table> <page>:<slot> <v1>,<v2>,...
  select <table> [<column> <op> <value>]   ops: = < > <= >= !=
  delete <table> <page>:<slot>
  print <file>
  .tables
  .help
  quit`)
}

func (sh *shell) createTable(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: create table <name> <col>:<type>,...")
	}
	name := args[0]
	cols, err := parseColumns(args[1])
	if err != nil {
		return err
	}
	_, err = sh.cat.CreateTable(name, cols)
	return err
}

func parseColumns(spec string) ([]catalog.ColumnDef, error) {
	parts := strings.Split(spec, ",")
	cols := make([]catalog.ColumnDef, 0, len(parts))
	for _, p := range parts {
		nt := strings.SplitN(p, ":", 2)
		if len(nt) != 2 {
			return nil, fmt.Errorf("bad column spec %q, want name:type", p)
		}
		if _, err := catalog.ParseType(nt[1]); err != nil {
			return nil, err
		}
		cols = append(cols, catalog.ColumnDef{Name: nt[0], Type: nt[1]})
	}
	return cols, nil
}

func (sh *shell) createIndex(args []string) error {
	// create index <name> on <table>(<column>)
	if len(args) < 3 || args[1] != "on" {
		return fmt.Errorf("usage: create index <name> on <table>(<column>)")
	}
	name := args[0]
	rest := strings.Join(args[2:], " ")
	open := strings.IndexByte(rest, '(')
	shut := strings.IndexByte(rest, ')')
	if open < 0 || shut < open {
		return fmt.Errorf("usage: create index <name> on <table>(<column>)")
	}
	table := strings.TrimSpace(rest[:open])
	column := strings.TrimSpace(rest[open+1 : shut])
	_, err := sh.cat.CreateIndex(table, name, column)
	return err
}

func (sh *shell) openEngine(tableName string) (*recordengine.Engine, catalog.TableDef, *pf.FileHandle, error) {
	t, ok := sh.cat.Table(tableName)
	if !ok {
		return nil, catalog.TableDef{}, nil, fmt.Errorf("no such table %q", tableName)
	}
	fh, err := pf.OpenFile(sh.cat.DataPath(t))
	if err != nil {
		return nil, catalog.TableDef{}, nil, err
	}
	return recordengine.Open(fh), t, fh, nil
}

func (sh *shell) insert(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: insert <table> <v1>,<v2>,...")
	}
	e, t, fh, err := sh.openEngine(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()
	desc, err := t.Descriptor()
	if err != nil {
		return err
	}
	raw := strings.Split(args[1], ",")
	if len(raw) != len(desc) {
		return fmt.Errorf("expected %d values, got %d", len(desc), len(raw))
	}
	values := make([]attribute.Value, len(desc))
	for i, s := range raw {
		v, err := parseValue(desc[i], s)
		if err != nil {
			return err
		}
		values[i] = v
	}
	rid, err := e.InsertRecord(desc, values)
	if err != nil {
		return err
	}
	fmt.Printf("inserted rid %d:%d\n", rid.PageNum, rid.SlotNum)
	return nil
}

func (sh *shell) update(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: update <table> <page>:<slot> <v1>,<v2>,...")
	}
	e, t, fh, err := sh.openEngine(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()
	rid, err := parseRID(args[1])
	if err != nil {
		return err
	}
	desc, err := t.Descriptor()
	if err != nil {
		return err
	}
	raw := strings.Split(args[2], ",")
	if len(raw) != len(desc) {
		return fmt.Errorf("expected %d values, got %d", len(desc), len(raw))
	}
	values := make([]attribute.Value, len(desc))
	for i, s := range raw {
		v, err := parseValue(desc[i], s)
		if err != nil {
			return err
		}
		values[i] = v
	}
	return e.UpdateRecord(rid, desc, values)
}

func parseValue(t attribute.Type, s string) (attribute.Value, error) {
	switch t {
	case attribute.Int:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return attribute.Value{}, err
		}
		return attribute.IntValue(int32(n)), nil
	case attribute.Real:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return attribute.Value{}, err
		}
		return attribute.RealValue(float32(f)), nil
	default:
		return attribute.VarCharString(s), nil
	}
}

var compOps = map[string]recordengine.CompOp{
	"=": recordengine.EQ, "<": recordengine.LT, ">": recordengine.GT,
	"<=": recordengine.LE, ">=": recordengine.GE, "!=": recordengine.NE,
}

func (sh *shell) selectAll(args []string) error {
	if len(args) != 1 && len(args) != 4 {
		return fmt.Errorf("usage: select <table> [<column> <op> <value>]")
	}
	e, t, fh, err := sh.openEngine(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()
	desc, err := t.Descriptor()
	if err != nil {
		return err
	}

	condAttr, op, value := 0, recordengine.NoOp, attribute.Value{}
	if len(args) == 4 {
		ci := -1
		for i, c := range t.Columns {
			if c.Name == args[1] {
				ci = i
			}
		}
		if ci < 0 {
			return fmt.Errorf("table %q has no column %q", args[0], args[1])
		}
		o, ok := compOps[args[2]]
		if !ok {
			return fmt.Errorf("unknown operator %q", args[2])
		}
		v, err := parseValue(desc[ci], args[3])
		if err != nil {
			return err
		}
		condAttr, op, value = ci, o, v
	}

	proj := make([]int, len(desc))
	for i := range proj {
		proj[i] = i
	}
	it := e.Scan(desc, condAttr, op, value, proj)
	for {
		rid, values, err := it.Next()
		if err == dberr.RecordEOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d:%d\t%s\n", rid.PageNum, rid.SlotNum, formatValues(values))
	}
}

func formatValues(values []attribute.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch v.Type {
		case attribute.Int:
			parts[i] = strconv.Itoa(int(v.IntVal))
		case attribute.Real:
			parts[i] = strconv.FormatFloat(float64(v.RealVal), 'g', -1, 32)
		default:
			parts[i] = string(v.Bytes)
		}
	}
	return strings.Join(parts, "\t")
}

func (sh *shell) deleteRID(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: delete <table> <page>:<slot>")
	}
	e, _, fh, err := sh.openEngine(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()
	rid, err := parseRID(args[1])
	if err != nil {
		return err
	}
	return e.DeleteRecord(rid)
}

func parseRID(s string) (attribute.RID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return attribute.RID{}, fmt.Errorf("bad rid %q, want page:slot", s)
	}
	page, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return attribute.RID{}, err
	}
	slot, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return attribute.RID{}, err
	}
	return attribute.RID{PageNum: uint32(page), SlotNum: uint32(slot)}, nil
}

func (sh *shell) printFreespace(file string) error {
	fh, err := pf.OpenFile(filepath.Join(sh.dir, file))
	if err != nil {
		return err
	}
	defer fh.Close()
	h := fh.Header()
	fmt.Printf("%s: %s across %d pages\n", file, humanize.Bytes(uint64(h.PageSize)*uint64(h.NumPages)), h.NumPages)
	for i, fl := range h.FreespaceLists {
		count := 0
		for p := fl.ListHead; p != 0; {
			count++
			buf := make([]byte, pf.PageSize)
			if err := fh.ReadPage(p, buf); err != nil {
				return err
			}
			footer := recordengine.ReadFooter(buf)
			p = footer.NextPage
		}
		fmt.Printf("  list[%2d] cutoff>=%-6s pages=%s\n", i, humanize.Bytes(uint64(fl.Cutoff)), humanize.Comma(int64(count)))
	}
	return nil
}
