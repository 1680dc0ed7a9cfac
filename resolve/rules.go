package resolve

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultSegment replaces the owner segments of an identifier when falling
// back.
const DefaultSegment = "default"

// Rule rewrites an identifier into the identifier of a default object. The
// second result is false if the rule does not apply.
type Rule struct {
	Name    string
	Rewrite func(identifier string) (string, bool)
}

// Ruleset is an ordered list of rules, most specific first. Rules are only
// considered for identifiers matching Gate.
type Ruleset struct {
	Name  string
	Gate  *regexp.Regexp
	Rules []Rule

	// DefaultStatus is the status code to answer with when a fallback is
	// served, unless configured otherwise.
	DefaultStatus int
}

// Rewrite returns the candidate produced by the first applicable rule, along
// with that rule's name. Later rules are never consulted once one applies.
func (rs Ruleset) Rewrite(identifier string) (candidate string, rule string, ok bool) {
	if rs.Gate == nil || !rs.Gate.MatchString(identifier) {
		return "", "", false
	}
	for _, r := range rs.Rules {
		if candidate, ok := r.Rewrite(identifier); ok {
			return candidate, r.Name, true
		}
	}
	return "", "", false
}

var (
	// AvatarRules replaces the segment holding the file's owner, right before
	// the file name, for anything under an avatar directory. For example,
	// "uploads/avatar/42/pic.jpg" falls back to "uploads/avatar/default/pic.jpg".
	AvatarRules = Ruleset{
		Name:          "avatar",
		Gate:          regexp.MustCompile(`/avatar/`),
		Rules:         []Rule{{Name: "avatar-owner", Rewrite: rewriteOwner}},
		DefaultStatus: http.StatusFound,
	}

	// ImageRules falls back from user, to club and team, to team images.
	ImageRules = Ruleset{
		Name: "image",
		Gate: regexp.MustCompile(`(^|/)(avatars?|images?)/`),
		Rules: []Rule{
			{Name: "user", Rewrite: rewriteUser},
			{Name: "club", Rewrite: rewriteClub},
			{Name: "team", Rewrite: rewriteTeam},
		},
		DefaultStatus: http.StatusOK,
	}

	// NoRules never falls back.
	NoRules = Ruleset{
		Name:          "none",
		DefaultStatus: http.StatusOK,
	}
)

// RulesetByName returns one of the predefined rulesets.
func RulesetByName(name string) (Ruleset, error) {
	switch name {
	case AvatarRules.Name:
		return AvatarRules, nil
	case ImageRules.Name:
		return ImageRules, nil
	case NoRules.Name, "":
		return NoRules, nil
	default:
		return Ruleset{}, fmt.Errorf("unknown fallback ruleset %q", name)
	}
}

// rewriteOwner ignores trailing empty segments, so "a/avatar/42/" becomes
// "a/default/42".
func rewriteOwner(identifier string) (string, bool) {
	segs := strings.Split(identifier, "/")
	for len(segs) > 0 && segs[len(segs)-1] == "" {
		segs = segs[:len(segs)-1]
	}
	if len(segs) < 2 {
		return "", false
	}
	segs[len(segs)-2] = DefaultSegment
	return strings.Join(segs, "/"), true
}

// ownerIndex returns the index of the first segment named key that is
// followed by an owner segment other than the file name, or -1.
func ownerIndex(segs []string, key string, from int) int {
	for i := from; i+2 < len(segs); i++ {
		if segs[i] == key && segs[i+1] != "" {
			return i
		}
	}
	return -1
}

// rewriteUser: ".../user/<id>/..." to ".../user/default/...".
func rewriteUser(identifier string) (string, bool) {
	segs := strings.Split(identifier, "/")
	for from := 0; ; {
		i := ownerIndex(segs, "user", from)
		if i < 0 {
			return "", false
		}
		if segs[i+1] != DefaultSegment {
			segs[i+1] = DefaultSegment
			return strings.Join(segs, "/"), true
		}
		from = i + 1
	}
}

// rewriteClub: ".../club/<c>/team/<t>/..." to ".../club/default/team/default/...".
func rewriteClub(identifier string) (string, bool) {
	segs := strings.Split(identifier, "/")
	for from := 0; ; {
		i := ownerIndex(segs, "club", from)
		if i < 0 {
			return "", false
		}
		if i+4 < len(segs) && segs[i+2] == "team" && segs[i+3] != "" &&
			(segs[i+1] != DefaultSegment || segs[i+3] != DefaultSegment) {
			segs[i+1] = DefaultSegment
			segs[i+3] = DefaultSegment
			return strings.Join(segs, "/"), true
		}
		from = i + 1
	}
}

var numericSuffix = regexp.MustCompile(`^(.+?)[-_][0-9]+(\.[^.]*)?$`)

// rewriteTeam: ".../team/<t>/<name>-<n>.<ext>" to ".../team/default/<name>.<ext>".
func rewriteTeam(identifier string) (string, bool) {
	segs := strings.Split(identifier, "/")
	i := ownerIndex(segs, "team", 0)
	if i < 0 {
		return "", false
	}
	changed := false
	if segs[i+1] != DefaultSegment {
		segs[i+1] = DefaultSegment
		changed = true
	}
	last := len(segs) - 1
	if m := numericSuffix.FindStringSubmatch(segs[last]); m != nil {
		segs[last] = m[1] + m[2]
		changed = true
	}
	if !changed {
		return "", false
	}
	return strings.Join(segs, "/"), true
}
