package resolve_test

import (
	"net/http"
	"testing"

	"github.com/nicolagi/gridserve/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarRules(t *testing.T) {
	testCases := []struct {
		identifier string
		candidate  string
		applies    bool
	}{
		{"uploads/avatar/42/pic.jpg", "uploads/avatar/default/pic.jpg", true},
		{"x/avatar/pic.jpg", "x/default/pic.jpg", true},
		{"uploads/avatar/default/pic.jpg", "uploads/avatar/default/pic.jpg", true},
		{"uploads/avatar/42/", "uploads/default/42", true},
		{"uploads/avatar/42//", "uploads/default/42", true},
		{"avatar/42/pic.jpg", "", false},
		{"uploads/avatars/42/pic.jpg", "", false},
		{"5f2a0c3e9d1b4a6e8c7f0123", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.identifier, func(t *testing.T) {
			candidate, rule, ok := resolve.AvatarRules.Rewrite(tc.identifier)
			assert.Equal(t, tc.applies, ok)
			assert.Equal(t, tc.candidate, candidate)
			if ok {
				assert.Equal(t, "avatar-owner", rule)
			}
		})
	}
}

func TestImageRules(t *testing.T) {
	testCases := []struct {
		identifier string
		candidate  string
		rule       string
	}{
		{"photos/user/42/avatar/pic.jpg", "photos/user/default/avatar/pic.jpg", "user"},
		{"images/user/42/pic.jpg", "images/user/default/pic.jpg", "user"},
		{"club/7/team/3/user/42/image/pic.jpg", "club/7/team/3/user/default/image/pic.jpg", "user"},
		{"club/7/team/3/images/logo.png", "club/default/team/default/images/logo.png", "club"},
		{"club/7/team/default/images/logo.png", "club/default/team/default/images/logo.png", "club"},
		{"images/team/12/logo-3.png", "images/team/default/logo.png", "team"},
		{"images/team/12/logo.png", "images/team/default/logo.png", "team"},
		{"images/team/default/logo_17.png", "images/team/default/logo.png", "team"},
		{"images/team/default/logo-a1-2", "images/team/default/logo-a1", "team"},
		{"user/default/club/default/team/default/images/logo.png", "", ""},
		{"images/user/42", "", ""},
		{"images/pic.jpg", "", ""},
		{"docs/user/42/report.pdf", "", ""},
		{"photos/user/42/imagery/pic.jpg", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.identifier, func(t *testing.T) {
			candidate, rule, ok := resolve.ImageRules.Rewrite(tc.identifier)
			assert.Equal(t, tc.rule != "", ok)
			assert.Equal(t, tc.candidate, candidate)
			assert.Equal(t, tc.rule, rule)
		})
	}
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	identifier := "photos/user/42/avatar/pic.jpg"
	before := identifier
	_, _, ok := resolve.ImageRules.Rewrite(identifier)
	require.True(t, ok)
	assert.Equal(t, before, identifier)
}

func TestNoRules(t *testing.T) {
	_, _, ok := resolve.NoRules.Rewrite("uploads/avatar/42/pic.jpg")
	assert.False(t, ok)
}

func TestRulesetByName(t *testing.T) {
	for name, want := range map[string]int{
		"avatar": http.StatusFound,
		"image":  http.StatusOK,
		"none":   http.StatusOK,
		"":       http.StatusOK,
	} {
		rs, err := resolve.RulesetByName(name)
		require.Nil(t, err)
		assert.Equal(t, want, rs.DefaultStatus, "ruleset %q", name)
	}
	_, err := resolve.RulesetByName("bogus")
	assert.NotNil(t, err)
}
