package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cleanclik/core/cleanclik/database/models"
)

type fakeLedger struct {
	rows      []*models.RankedUser
	err       error
	lastLimit int
	lastSince time.Time
	sinceUsed bool
}

func (f *fakeLedger) TopUsers(ctx context.Context, limit int) ([]*models.RankedUser, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

func (f *fakeLedger) TopUsersSince(ctx context.Context, since time.Time, limit int) ([]*models.RankedUser, error) {
	f.lastLimit = limit
	f.lastSince = since
	f.sinceUsed = true
	return f.rows, f.err
}

func rankedRow(id, name string, points int64) *models.RankedUser {
	return &models.RankedUser{
		UserID:      id,
		DisplayName: name,
		Points:      points,
		LastActive:  time.Now(),
	}
}

func TestEngine_GetLeaderboard_DenseRanks(t *testing.T) {
	ledger := &fakeLedger{rows: []*models.RankedUser{
		rankedRow("u1", "Aki", 500),
		rankedRow("u2", "Ben", 500),
		rankedRow("u3", "Cleo", 300),
	}}
	engine := NewEngine(ledger)

	entries, err := engine.GetLeaderboard(context.Background(), "caller", PeriodAllTime, 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetLeaderboard() returned %d entries, want 3", len(entries))
	}

	wantRanks := []int{1, 1, 2}
	for i, want := range wantRanks {
		if entries[i].Rank != want {
			t.Errorf("entry %d rank = %d, want %d", i, entries[i].Rank, want)
		}
	}
	if entries[2].Level != models.LevelForPoints(300) {
		t.Errorf("entry level = %d, want %d", entries[2].Level, models.LevelForPoints(300))
	}
}

func TestEngine_GetLeaderboard_ExcludesZeroPoints(t *testing.T) {
	ledger := &fakeLedger{rows: []*models.RankedUser{
		rankedRow("u1", "Aki", 200),
		rankedRow("u2", "Ben", 0),
		rankedRow("u3", "Cleo", -5),
	}}
	engine := NewEngine(ledger)

	entries, err := engine.GetLeaderboard(context.Background(), "caller", PeriodAllTime, 10)
	if err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetLeaderboard() returned %d entries, want 1", len(entries))
	}
	if entries[0].UserID != "u1" {
		t.Errorf("entry user = %q, want %q", entries[0].UserID, "u1")
	}
}

func TestEngine_GetLeaderboard_Errors(t *testing.T) {
	tests := []struct {
		name     string
		callerID string
		period   Period
		ledger   *fakeLedger
		wantErr  error
	}{
		{
			name:     "anonymous caller",
			callerID: "",
			period:   PeriodAllTime,
			ledger:   &fakeLedger{},
			wantErr:  ErrAccessDenied,
		},
		{
			name:     "ledger unreachable",
			callerID: "caller",
			period:   PeriodAllTime,
			ledger:   &fakeLedger{err: errors.New("connection refused")},
			wantErr:  ErrDataUnavailable,
		},
		{
			name:     "unknown period",
			callerID: "caller",
			period:   Period("fortnightly"),
			ledger:   &fakeLedger{},
			wantErr:  ErrInvalidPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.ledger)
			_, err := engine.GetLeaderboard(context.Background(), tt.callerID, tt.period, 10)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetLeaderboard() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_GetLeaderboard_PeriodWindows(t *testing.T) {
	tests := []struct {
		name      string
		period    Period
		wantSince bool
		maxAge    time.Duration
	}{
		{name: "all time uses full ledger", period: PeriodAllTime, wantSince: false},
		{name: "daily rolls 24h", period: PeriodDaily, wantSince: true, maxAge: 24 * time.Hour},
		{name: "weekly rolls 7d", period: PeriodWeekly, wantSince: true, maxAge: 7 * 24 * time.Hour},
		{name: "monthly rolls 30d", period: PeriodMonthly, wantSince: true, maxAge: 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			engine := NewEngine(ledger)

			before := time.Now()
			if _, err := engine.GetLeaderboard(context.Background(), "caller", tt.period, 10); err != nil {
				t.Fatalf("GetLeaderboard() error = %v", err)
			}

			if ledger.sinceUsed != tt.wantSince {
				t.Fatalf("sinceUsed = %v, want %v", ledger.sinceUsed, tt.wantSince)
			}
			if tt.wantSince {
				want := before.Add(-tt.maxAge)
				if ledger.lastSince.Before(want.Add(-time.Minute)) || ledger.lastSince.After(time.Now()) {
					t.Errorf("since = %v, want about %v", ledger.lastSince, want)
				}
			}
		})
	}
}

func TestEngine_GetLeaderboard_ClampsLimit(t *testing.T) {
	ledger := &fakeLedger{}
	engine := NewEngine(ledger)

	if _, err := engine.GetLeaderboard(context.Background(), "caller", PeriodAllTime, 10_000); err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if ledger.lastLimit != MaxLimit {
		t.Errorf("limit = %d, want %d", ledger.lastLimit, MaxLimit)
	}

	if _, err := engine.GetLeaderboard(context.Background(), "caller", PeriodAllTime, 0); err != nil {
		t.Fatalf("GetLeaderboard() error = %v", err)
	}
	if ledger.lastLimit != DefaultLimit {
		t.Errorf("limit = %d, want %d", ledger.lastLimit, DefaultLimit)
	}
}

func TestEngine_Search(t *testing.T) {
	ledger := &fakeLedger{rows: []*models.RankedUser{
		rankedRow("u1", "GreenGuru", 900),
		rankedRow("u2", "BinBoss", 700),
		rankedRow("u3", "GardenGnome", 500),
	}}
	engine := NewEngine(ledger)

	results, err := engine.Search(context.Background(), "caller", "bin", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d entries, want 1", len(results))
	}
	if results[0].UserID != "u2" {
		t.Errorf("match user = %q, want %q", results[0].UserID, "u2")
	}
	// Rank survives filtering
	if results[0].Rank != 2 {
		t.Errorf("match rank = %d, want 2", results[0].Rank)
	}
}

func TestEngine_Search_ReachesBelowPageSize(t *testing.T) {
	var rows []*models.RankedUser
	for i := 0; i < 250; i++ {
		rows = append(rows, rankedRow(
			fmt.Sprintf("u%d", i),
			fmt.Sprintf("Collector%d", i),
			int64(10_000-i),
		))
	}
	rows[240].DisplayName = "BinBoss"

	ledger := &fakeLedger{rows: rows}
	engine := NewEngine(ledger)

	results, err := engine.Search(context.Background(), "caller", "binboss", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if ledger.lastLimit != SearchDepth {
		t.Errorf("ledger limit = %d, want %d", ledger.lastLimit, SearchDepth)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d entries, want 1", len(results))
	}
	// A name ranked past the page-size cap is still findable
	if results[0].UserID != "u240" {
		t.Errorf("match user = %q, want %q", results[0].UserID, "u240")
	}
	if results[0].Rank != 241 {
		t.Errorf("match rank = %d, want 241", results[0].Rank)
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	engine := NewEngine(&fakeLedger{})

	results, err := engine.Search(context.Background(), "caller", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() returned %d entries, want 0", len(results))
	}

	if _, err := engine.Search(context.Background(), "", "bin", 10); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Search() error = %v, want %v", err, ErrAccessDenied)
	}
}
