package mcpbridge

import (
	"context"
	"testing"
	"time"

	"github.com/automaker/engine/internal/feature"
)

func noopCallbacks() Callbacks {
	return Callbacks{
		UpdateStatus: func(ctx context.Context, featureID string, status feature.Status, summary, errMsg *string) (feature.Status, error) {
			return status, nil
		},
		UpdatePlan: func(ctx context.Context, featureID string, plan feature.PlanSpec) error {
			return nil
		},
		AttachFile: func(ctx context.Context, featureID string, relPath string) error {
			return nil
		},
	}
}

func TestBridge_AuthorizeUnknownToken(t *testing.T) {
	b := New(noopCallbacks())
	if _, jerr := b.authorize("nope"); jerr == nil {
		t.Fatal("expected an error for an unissued token")
	}
}

func TestBridge_AuthorizeIssuedToken(t *testing.T) {
	b := New(noopCallbacks())
	b.IssueToken("tok-1", "feat-1", time.Minute)

	featureID, jerr := b.authorize("tok-1")
	if jerr != nil {
		t.Fatalf("unexpected error: %v", jerr)
	}
	if featureID != "feat-1" {
		t.Fatalf("featureID = %q, want feat-1", featureID)
	}
}

func TestBridge_AuthorizeExpiredToken(t *testing.T) {
	b := New(noopCallbacks())
	b.IssueToken("tok-1", "feat-1", -time.Second)

	if _, jerr := b.authorize("tok-1"); jerr == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestBridge_RevokeToken(t *testing.T) {
	b := New(noopCallbacks())
	b.IssueToken("tok-1", "feat-1", time.Minute)
	b.RevokeToken("tok-1")

	if _, jerr := b.authorize("tok-1"); jerr == nil {
		t.Fatal("expected an error for a revoked token")
	}
}

func TestBridge_TokensAreScopedPerFeature(t *testing.T) {
	b := New(noopCallbacks())
	b.IssueToken("tok-a", "feat-a", time.Minute)
	b.IssueToken("tok-b", "feat-b", time.Minute)

	idA, _ := b.authorize("tok-a")
	idB, _ := b.authorize("tok-b")
	if idA == idB {
		t.Fatalf("expected distinct feature ids, got %q and %q", idA, idB)
	}
}
