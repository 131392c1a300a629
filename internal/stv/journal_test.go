package stv_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"stv-go/internal/model"
	"stv-go/internal/stv"
	"stv-go/internal/testutil"
)

func TestService_History(t *testing.T) {
	journal := testutil.NewTestJournal(t)
	clock := testutil.FixedClock()
	svc := stv.NewService(afero.NewMemMapFs(), journal, nil, stv.NewNopLogger(), clock, stv.Options{HostID: "h"})

	for i, f := range []string{"/a", "/b", "/a"} {
		op := model.NewOperation("discard", f, "x", clock.Now().Add(time.Duration(i)*time.Minute))
		if err := journal.CreateOperation(op); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
	}

	all, err := svc.History("", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("History() returned %d operations, want 3", len(all))
	}

	onlyA, err := svc.History("/a", 1)
	if err != nil {
		t.Fatalf("History(/a) error = %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].Folder != "/a" {
		t.Errorf("History(/a, 1) = %+v", onlyA)
	}

	if _, err := svc.History("", 0); !errors.Is(err, stv.ErrInvalidArgument) {
		t.Errorf("History(limit=0) error = %v, want ErrInvalidArgument", err)
	}
}
