package codehost

import (
	"context"
	"testing"
)

func TestNewUnrecognizedPlatformReturnsNullClient(t *testing.T) {
	c := New("bogus")
	if _, ok := c.(nullClient); !ok {
		t.Fatalf("New(bogus) = %T, want nullClient", c)
	}
}

func TestNewEmptyPlatformReturnsNullClient(t *testing.T) {
	c := New(PlatformNone)
	if _, ok := c.(nullClient); !ok {
		t.Fatalf("New(%q) = %T, want nullClient", PlatformNone, c)
	}
}

func TestNullClientIsGracefulNoOp(t *testing.T) {
	ctx := context.Background()
	c := nullClient{}

	status, err := c.GetPRStatus(ctx, "https://example.invalid/pr/1")
	if err != nil || status != (PRStatus{}) {
		t.Errorf("GetPRStatus = (%+v, %v), want (zero value, nil)", status, err)
	}
	if head, err := c.GetBranchHead(ctx, "main"); err != nil || head != "" {
		t.Errorf("GetBranchHead = (%q, %v), want (\"\", nil)", head, err)
	}
	if err := c.EditPRBase(ctx, 1, "main"); err != nil {
		t.Errorf("EditPRBase = %v, want nil", err)
	}
	if err := c.MarkPRReady(ctx, 1); err != nil {
		t.Errorf("MarkPRReady = %v, want nil", err)
	}
}
