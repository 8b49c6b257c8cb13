package gate

import (
	"fmt"
	"math"
	"testing"

	"github.com/evanofslack/zonesync/internal/diff"
	"github.com/evanofslack/zonesync/internal/record"
	"github.com/evanofslack/zonesync/internal/risk"
)

func entries(label risk.Label, n int) []risk.Classified {
	out := make([]risk.Classified, 0, n)
	for i := 0; i < n; i++ {
		key := record.Key{Name: fmt.Sprintf("r%d.example.com.", i), Type: "A"}
		out = append(out, risk.Classified{Entry: diff.Entry{Key: key}, Risk: label})
	}
	return out
}

func TestEvaluateDestructiveBoundary(t *testing.T) {
	th := Thresholds{MaxDestructive: 3, MaxChangeRatio: 1, MinRecordsForRatio: 10}

	tests := []struct {
		name         string
		destructive  int
		wantApproved bool
	}{
		{"below limit", 2, true},
		{"exactly at limit", 3, true},
		{"one over limit", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate("example.com.", entries(risk.Destructive, tt.destructive), 100, 100, th)
			if d.Approved != tt.wantApproved {
				t.Fatalf("approved = %v, want %v (reasons %v)", d.Approved, tt.wantApproved, d.Reasons)
			}
			if !tt.wantApproved {
				if len(d.Reasons) != 1 || d.Reasons[0].Rule != RuleDestructive {
					t.Errorf("unexpected reasons: %+v", d.Reasons)
				}
				if d.Reasons[0].Actual != 4 || d.Reasons[0].Limit != 3 {
					t.Errorf("reason numbers = %v/%v", d.Reasons[0].Actual, d.Reasons[0].Limit)
				}
			}
		})
	}
}

func TestEvaluateRatioBoundary(t *testing.T) {
	th := Thresholds{MaxDestructive: 100, MaxChangeRatio: 0.5, MinRecordsForRatio: 10}

	at := Evaluate("example.com.", entries(risk.Caution, 10), 20, 20, th)
	if !at.Approved {
		t.Errorf("ratio exactly at limit rejected: %+v", at.Reasons)
	}
	over := Evaluate("example.com.", entries(risk.Caution, 11), 20, 20, th)
	if over.Approved {
		t.Error("ratio over limit approved")
	}
	if over.Reasons[0].Rule != RuleChangeRatio {
		t.Errorf("rule = %s", over.Reasons[0].Rule)
	}
}

func TestEvaluateSafeChangesDoNotCount(t *testing.T) {
	d := Evaluate("example.com.", entries(risk.Safe, 50), 10, 10, DefaultThresholds())
	if !d.Approved || d.Ratio != 0 {
		t.Errorf("safe changes rejected: approved=%v ratio=%v", d.Approved, d.Ratio)
	}
}

func TestEvaluateEmptyDesiredZone(t *testing.T) {
	// 50 live records and an empty zone file: every entry is a delete.
	th := Thresholds{MaxDestructive: 1000, MaxChangeRatio: 0.5, MinRecordsForRatio: 10}
	d := Evaluate("example.com.", entries(risk.Destructive, 50), 0, 50, th)

	if d.Approved {
		t.Fatal("expected rejection")
	}
	if !math.IsInf(d.Ratio, 1) {
		t.Errorf("ratio = %v, want +Inf", d.Ratio)
	}
	if len(d.Reasons) != 1 || d.Reasons[0].Rule != RuleChangeRatio {
		t.Errorf("unexpected reasons: %+v", d.Reasons)
	}
}

func TestEvaluateEmptyDesiredSmallZone(t *testing.T) {
	tests := []struct {
		name string
		live int
	}{
		{"single record", 1},
		{"below ratio minimum", 9},
		{"at ratio minimum", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate("example.com.", entries(risk.Destructive, tt.live), 0, tt.live, DefaultThresholds())
			if d.Approved {
				t.Fatalf("wiping %d live records approved", tt.live)
			}
			if len(d.Reasons) != 1 || d.Reasons[0].Rule != RuleChangeRatio {
				t.Errorf("unexpected reasons: %+v", d.Reasons)
			}
		})
	}

	if d := Evaluate("example.com.", nil, 0, 0, DefaultThresholds()); !d.Approved {
		t.Errorf("empty zone with no changes rejected: %+v", d.Reasons)
	}
}

func TestEvaluateSmallZoneSkipsRatio(t *testing.T) {
	th := Thresholds{MaxDestructive: 10, MaxChangeRatio: 0.3, MinRecordsForRatio: 10}
	d := Evaluate("example.com.", entries(risk.Caution, 4), 5, 5, th)
	if !d.Approved {
		t.Errorf("small zone rejected on ratio: %+v", d.Reasons)
	}
}

func TestForce(t *testing.T) {
	th := Thresholds{MaxDestructive: 0, MaxChangeRatio: 1, MinRecordsForRatio: 10}
	d := Evaluate("example.com.", entries(risk.Destructive, 1), 10, 10, th)
	if d.Approved {
		t.Fatal("expected rejection")
	}
	forced := d.Force()
	if !forced.Approved || !forced.Forced {
		t.Errorf("forced decision = %+v", forced)
	}
	if len(forced.Reasons) != 1 {
		t.Errorf("forced decision dropped reasons: %+v", forced.Reasons)
	}

	ok := Evaluate("example.com.", nil, 10, 10, th).Force()
	if ok.Forced {
		t.Error("forcing an approved decision should not mark it forced")
	}
}
