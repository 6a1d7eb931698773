package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// segmentGen draws either a literal segment or a {placeholder} segment.
func segmentGen() *rapid.Generator[string] {
	literal := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9-]{0,15}`)
	placeholder := rapid.Custom(func(t *rapid.T) string {
		name := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9]{0,15}`).Draw(t, "paramName")
		return "{" + name + "}"
	})
	return rapid.OneOf(literal, placeholder)
}

func TestProperty_HasPathParams_MatchesPlaceholderPresence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		segments := rapid.SliceOfN(segmentGen(), 0, 8).Draw(rt, "segments")
		template := "/" + strings.Join(segments, "/")

		wantParams := false
		for _, seg := range segments {
			if strings.HasPrefix(seg, "{") {
				wantParams = true
				break
			}
		}

		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "PATCH", "DELETE"}).Draw(rt, "method")
		got := Classify(method, template)

		assert.Equal(rt, wantParams, got.HasPathParams,
			"hasPathParams must equal placeholder presence for %q", template)
		assert.Equal(rt, got.HasPathParams, HasPlaceholder(template))
	})
}

func TestProperty_Resource_IsLastLiteralSegment(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		segments := rapid.SliceOfN(segmentGen(), 0, 8).Draw(rt, "segments")
		template := "/" + strings.Join(segments, "/")

		var wantResource *string
		for i := len(segments) - 1; i >= 0; i-- {
			if !strings.HasPrefix(segments[i], "{") {
				r := strings.ToLower(segments[i])
				wantResource = &r
				break
			}
		}

		got := Classify("GET", template)

		if wantResource == nil {
			assert.Nil(rt, got.Resource, "template %q has no literal segment", template)
			assert.Equal(rt, ActionOther, got.Action)
		} else {
			require.NotNil(rt, got.Resource)
			assert.Equal(rt, *wantResource, *got.Resource)
		}
	})
}

// Classification is a pure function: identical inputs always produce
// identical outputs.
func TestProperty_Classify_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		segments := rapid.SliceOfN(segmentGen(), 0, 6).Draw(rt, "segments")
		template := "/" + strings.Join(segments, "/")
		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}).Draw(rt, "method")

		first := Classify(method, template)
		second := Classify(method, template)
		assert.Equal(rt, first, second)
	})
}

// Every GET with a resolvable resource lands in exactly one of the three GET
// shapes, decided by placeholder presence and the final segment.
func TestProperty_GetActionShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		segments := rapid.SliceOfN(segmentGen(), 1, 8).Draw(rt, "segments")
		template := "/" + strings.Join(segments, "/")

		got := Classify("GET", template)
		if got.Resource == nil {
			assert.Equal(rt, ActionOther, got.Action)
			return
		}

		last := segments[len(segments)-1]
		switch {
		case !got.HasPathParams:
			assert.Equal(rt, ActionList, got.Action)
		case strings.HasPrefix(last, "{"):
			assert.Equal(rt, ActionGetByID, got.Action)
		default:
			assert.Equal(rt, ActionListScoped, got.Action)
		}
	})
}
