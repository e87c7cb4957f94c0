package schemas_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// TestConstants pins string values that appear in prompts and logs.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		{"ActionLink", schemas.ActionLink, "link"},
		{"ActionForm", schemas.ActionForm, "form"},
		{"ActionRead", schemas.ActionRead, "read"},
		{"ActionOther", schemas.ActionOther, "other"},
		{"TierFast", schemas.TierFast, "fast"},
		{"TierPowerful", schemas.TierPowerful, "powerful"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, fmt.Sprint(tc.constant))
		})
	}
}

func TestParseActionKind(t *testing.T) {
	assert.Equal(t, schemas.ActionLink, schemas.ParseActionKind("link"))
	assert.Equal(t, schemas.ActionForm, schemas.ParseActionKind("form"))
	assert.Equal(t, schemas.ActionRead, schemas.ParseActionKind("read"))
	assert.Equal(t, schemas.ActionOther, schemas.ParseActionKind("button"))
	assert.Equal(t, schemas.ActionOther, schemas.ParseActionKind(""))
	assert.Equal(t, schemas.ActionOther, schemas.ParseActionKind("LINK"), "kinds are case-sensitive")
}

func TestFormIdentity_IsEmpty(t *testing.T) {
	assert.True(t, schemas.FormIdentity{}.IsEmpty())
	assert.False(t, schemas.FormIdentity{FormID: "f"}.IsEmpty())
	assert.False(t, schemas.FormIdentity{InputSelector: "input"}.IsEmpty())
}

func TestExtractionResult_Find(t *testing.T) {
	r := &schemas.ExtractionResult{Actions: []schemas.PageAction{
		{Name: "Search", Kind: schemas.ActionForm},
		{Name: schemas.ReadActionName, Kind: schemas.ActionRead},
	}}

	a, ok := r.Find("Search")
	require.True(t, ok)
	assert.Equal(t, schemas.ActionForm, a.Kind)

	_, ok = r.Find("Missing")
	assert.False(t, ok)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := context.DeadlineExceeded

	t.Run("NavigationFailure unwraps and carries the URL", func(t *testing.T) {
		var err error = &schemas.NavigationFailure{URL: "https://example.com", Err: cause}
		wrapped := fmt.Errorf("cycle: %w", err)

		var nav *schemas.NavigationFailure
		require.True(t, errors.As(wrapped, &nav))
		assert.Equal(t, "https://example.com", nav.URL)
		assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "https://example.com")
	})

	t.Run("StartupError", func(t *testing.T) {
		err := &schemas.StartupError{Reason: "GEMINI_API_KEY is not set"}
		assert.Equal(t, "startup failed: GEMINI_API_KEY is not set", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("ExtractionParseFailure", func(t *testing.T) {
		err := &schemas.ExtractionParseFailure{Raw: "{oops", Err: errors.New("bad json")}
		assert.Contains(t, err.Error(), "bad json")
		assert.Contains(t, err.Error(), "{oops")
	})

	t.Run("recoverable classification", func(t *testing.T) {
		assert.True(t, schemas.IsRecoverable(&schemas.ResolutionMiss{Action: "Search"}))
		assert.True(t, schemas.IsRecoverable(fmt.Errorf("x: %w", &schemas.SubmissionTimeout{Timeout: time.Second})))
		assert.False(t, schemas.IsRecoverable(&schemas.ExtractionParseFailure{}))
		assert.False(t, schemas.IsRecoverable(&schemas.NavigationFailure{}))
		assert.False(t, schemas.IsRecoverable(schemas.ErrOperatorCancelled))
	})
}
