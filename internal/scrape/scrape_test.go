package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		kind PageKind
	}{
		{"https://shop.example/category/books", PageCategory},
		{"https://shop.example/en/category/books/fiction", PageCategory},
		{"https://shop.example/product/123-dune", PageProduct},
		{"https://shop.example/category/books/product/9", PageCategory},
	}
	for _, tc := range cases {
		kind, err := Classify(tc.url)
		require.NoError(t, err, tc.url)
		require.Equal(t, tc.kind, kind, tc.url)
	}

	_, err := Classify("https://shop.example/about")
	require.Error(t, err)
	require.Equal(t, KindUnsupportedTarget, KindOf(err))
	require.False(t, IsRetryable(err))
}

func TestClassifyIgnoresQueryString(t *testing.T) {
	t.Parallel()

	_, err := Classify("https://shop.example/search?next=/category/books")
	require.Error(t, err)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "fiction", Slugify("Fiction"))
	require.Equal(t, "non-fiction", Slugify("Non-fiction"))
	require.Equal(t, "science-fiction-and-fantasy", Slugify("  Science   Fiction\tand Fantasy "))
	require.Equal(t, "", Slugify("   "))
}

func TestLastPathSegment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "123-dune", LastPathSegment("/product/123-dune"))
	require.Equal(t, "123-dune", LastPathSegment("https://shop.example/product/123-dune/"))
	require.Equal(t, "42", LastPathSegment("/p/42?ref=home"))
	require.Equal(t, "", LastPathSegment("/"))
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://shop.example/c/scifi", ResolveURL("https://shop.example/category/books", "/c/scifi"))
	require.Equal(t, "https://cdn.example/x.png", ResolveURL("https://shop.example/", "https://cdn.example/x.png"))
	require.Equal(t, "", ResolveURL("https://shop.example/", "  "))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	cases := []struct {
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{ExtractionTimeout("wait", base), KindExtractionTimeout, true},
		{Persistence("upsert", base), KindPersistence, true},
		{Infrastructure("load", base), KindInfrastructure, true},
		{UnresolvedParent("category", base), KindUnresolvedParent, false},
		{base, KindUnknown, true},
		{fmt.Errorf("wrapped: %w", Persistence("x", base)), KindPersistence, true},
		{context.Canceled, KindUnknown, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, KindOf(tc.err), tc.err.Error())
		require.Equal(t, tc.retryable, IsRetryable(tc.err), tc.err.Error())
	}
	require.ErrorIs(t, Persistence("x", base), base)
	require.NoError(t, Persistence("x", nil))
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, CanTransition(JobStatusPending, JobStatusInProgress))
	require.True(t, CanTransition(JobStatusInProgress, JobStatusInProgress))
	require.True(t, CanTransition(JobStatusInProgress, JobStatusCompleted))
	require.True(t, CanTransition(JobStatusInProgress, JobStatusFailed))

	require.True(t, CanTransition(JobStatusPending, JobStatusFailed))
	require.False(t, CanTransition(JobStatusPending, JobStatusCompleted))
	for _, terminal := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		require.True(t, terminal.IsTerminal())
		for _, to := range []JobStatus{JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed} {
			require.ErrorIs(t, ValidateTransition(terminal, to), ErrInvalidTransition)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	t.Parallel()

	require.Equal(t, []JobStatus{JobStatusPending, JobStatusInProgress}, TransitionSources(JobStatusInProgress))
	require.Equal(t, []JobStatus{JobStatusInProgress}, TransitionSources(JobStatusCompleted))
	require.Equal(t, []JobStatus{JobStatusPending, JobStatusInProgress}, TransitionSources(JobStatusFailed))
	require.Empty(t, TransitionSources(JobStatusPending))
}

func TestParseTargetType(t *testing.T) {
	t.Parallel()

	got, err := ParseTargetType(" Category ")
	require.NoError(t, err)
	require.Equal(t, TargetCategory, got)

	_, err = ParseTargetType("sitemap")
	require.Error(t, err)
}
