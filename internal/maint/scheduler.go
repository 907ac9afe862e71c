// Package maint runs periodic housekeeping over catalog-registered
// tables, namely ReorganizeFile, on a cron schedule.
package maint

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chriswood/pagedb/internal/catalog"
	"github.com/chriswood/pagedb/internal/storage/pf"
	"github.com/chriswood/pagedb/internal/storage/recordengine"
)

// Scheduler periodically reorganizes every table tracked by a Catalog.
type Scheduler struct {
	cat  *catalog.Catalog
	cron *cron.Cron
	mu   sync.Mutex

	lastRun map[string]time.Time
}

// NewScheduler builds a scheduler over cat, ticking on a per-second cron
// parser: expressions take six fields, seconds first, and standard
// five-field expressions are rejected.
func NewScheduler(cat *catalog.Catalog) *Scheduler {
	loc, _ := time.LoadLocation("UTC")
	return &Scheduler{
		cat:     cat,
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		lastRun: make(map[string]time.Time),
	}
}

// AddReorganizeJob schedules ReorganizeFile for every table currently in
// the catalog, run on the given cron expression.
func (s *Scheduler) AddReorganizeJob(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, s.reorganizeAll)
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// LastRun reports when a table was last reorganized, if ever.
func (s *Scheduler) LastRun(table string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[table]
	return t, ok
}

func (s *Scheduler) reorganizeAll() {
	for _, t := range s.cat.Tables() {
		if err := s.reorganizeTable(t); err != nil {
			log.Printf("maint: reorganize %q failed: %v", t.Name, err)
			continue
		}
		s.mu.Lock()
		s.lastRun[t.Name] = time.Now()
		s.mu.Unlock()
	}
}

func (s *Scheduler) reorganizeTable(t catalog.TableDef) error {
	fh, err := pf.OpenFile(s.cat.DataPath(t))
	if err != nil {
		return err
	}
	defer fh.Close()
	return recordengine.Open(fh).ReorganizeFile()
}
